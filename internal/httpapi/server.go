// Package httpapi is the HTTP gateway: cached upstream pass-through, option
// chain analytics, technicals, scans and the worker over HTTP and
// WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tradedesk/internal/engine"
	"tradedesk/internal/fetch"
	"tradedesk/internal/metrics"
	"tradedesk/internal/worker"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Server serves the gateway HTTP API.
type Server struct {
	engine   *engine.Engine
	worker   *worker.Worker
	cache    *fetch.Cache
	hub      *Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
	started  time.Time
}

// NewServer creates a new gateway server. hub may be nil, in which case
// /ws/snapshots is not served.
func NewServer(eng *engine.Engine, w *worker.Worker, hub *Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine: eng,
		worker: w,
		cache:  eng.Upstream().Cache(),
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     log.With("component", "httpapi"),
		started: time.Now(),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/market/{path...}", s.handleMarket)
	mux.HandleFunc("GET /api/stocks", s.handleStocks)
	mux.HandleFunc("GET /api/option-chain/{symbol}", s.handleOptionChain)
	mux.HandleFunc("GET /api/oi-history/{symbol}", s.handleOIHistory)
	mux.HandleFunc("GET /api/technicals/{symbol}", s.handleTechnicals)
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("POST /api/compute", s.handleCompute)
	mux.HandleFunc("GET /api/cache", s.handleCacheStats)
	mux.HandleFunc("DELETE /api/cache", s.handleClearCache)
	mux.HandleFunc("GET /ws/compute", s.handleComputeWS)
	if s.hub != nil {
		mux.HandleFunc("GET /ws/snapshots", s.hub.ServeWS)
	}
}

// Handler returns an http.Handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.logRequests(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeErr maps err onto an HTTP status. Upstream 4xx statuses pass
// through; upstream 5xx and transport failures become 502.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var se *fetch.StatusError
	switch {
	case errors.As(err, &se):
		if se.StatusCode >= 400 && se.StatusCode < 500 {
			return se.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, worker.ErrStopped),
		errors.Is(err, engine.ErrNoSnapshotStore),
		errors.Is(err, engine.ErrNoCandleStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, metrics.ErrInsufficientData),
		errors.Is(err, metrics.ErrEmptyChain):
		return http.StatusUnprocessableEntity
	}
	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeBody(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
