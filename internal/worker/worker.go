// Package worker runs the metrics computations behind a message queue. A
// single goroutine consumes requests in arrival order and answers each one
// with a response carrying the request's correlation id.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"
)

var (
	// ErrUnknownType is reported for a request whose type has no handler.
	ErrUnknownType = errors.New("unknown message type")

	// ErrStopped is returned when the worker is no longer running.
	ErrStopped = errors.New("worker stopped")
)

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 64

// Request is one unit of work. Payload is decoded by the handler that Type
// selects.
type Request struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	ID      string          `json:"id"`
}

// Response answers the Request with the same ID. Exactly one of Result and
// Error is meaningful, as told by Success.
type Response struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandlerFunc computes the result for a raw payload.
type HandlerFunc func(payload json.RawMessage) (any, error)

type job struct {
	ctx   context.Context
	req   Request
	reply chan<- Response
}

// Worker owns a bounded FIFO queue and the handler table. Handlers keep no
// state between messages.
type Worker struct {
	handlers map[string]HandlerFunc
	jobs     chan job
	done     chan struct{}
	running  atomic.Bool
	log      *slog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a worker with the metrics handlers registered. Call Run to
// start consuming.
func New(queueSize int, log *slog.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		handlers: make(map[string]HandlerFunc),
		jobs:     make(chan job, queueSize),
		done:     make(chan struct{}),
		log:      log.With("component", "worker"),
	}
	registerMetrics(w)
	return w
}

// Register adds or replaces the handler for typ. It must be called before
// Run.
func (w *Worker) Register(typ string, h HandlerFunc) {
	w.handlers[typ] = h
}

// Types lists the registered message types in sorted order.
func (w *Worker) Types() []string {
	out := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run consumes the queue until ctx is cancelled. It may be called once.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("worker already running")
	}
	defer close(w.done)

	w.log.Info("worker started", "queue", cap(w.jobs), "types", len(w.handlers))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped",
				"processed", w.processed.Load(), "failed", w.failed.Load())
			return nil
		case j := <-w.jobs:
			resp := w.Handle(j.req)
			select {
			case j.reply <- resp:
			case <-j.ctx.Done():
				w.log.Debug("reply dropped, caller gone", "id", j.req.ID, "type", j.req.Type)
			}
		}
	}
}

// Enqueue queues req; its response is delivered on reply. reply should be
// buffered or drained while ctx is live, otherwise the response is dropped
// once ctx ends.
func (w *Worker) Enqueue(ctx context.Context, req Request, reply chan<- Response) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}
	select {
	case w.jobs <- job{ctx: ctx, req: req, reply: reply}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	}
}

// Submit queues req and waits for its response.
func (w *Worker) Submit(ctx context.Context, req Request) (Response, error) {
	reply := make(chan Response, 1)
	if err := w.Enqueue(ctx, req, reply); err != nil {
		return Response{}, err
	}
	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-w.done:
		// Run may have answered just before stopping.
		select {
		case resp := <-reply:
			return resp, nil
		default:
			return Response{}, ErrStopped
		}
	}
}

// Handle dispatches req on the caller's goroutine. Handler errors, unknown
// types and panics all become failed responses.
func (w *Worker) Handle(req Request) (resp Response) {
	start := time.Now()
	resp.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			resp = Response{ID: req.ID, Error: fmt.Sprintf("%s panicked: %v", req.Type, r)}
		}
		if resp.Success {
			w.processed.Add(1)
		} else {
			w.failed.Add(1)
			w.log.Warn("request failed", "id", req.ID, "type", req.Type, "error", resp.Error)
		}
		w.log.Debug("request handled", "id", req.ID, "type", req.Type,
			"success", resp.Success, "elapsed", time.Since(start))
	}()

	h, ok := w.handlers[req.Type]
	if !ok {
		resp.Error = fmt.Errorf("%w: %q", ErrUnknownType, req.Type).Error()
		return resp
	}
	result, err := h(req.Payload)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.Result = result
	return resp
}

// Stats returns the number of successful and failed requests so far.
func (w *Worker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}
