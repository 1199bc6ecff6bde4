package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tradedesk/internal/util"
)

// Retry defaults.
const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// RetryTransport retries requests that come back with a 5xx status. The
// n-th retry waits BaseDelay * 2^n (2s, 4s, 8s with the defaults). Client
// errors and transport failures are returned at once. Every attempt gets
// its own Timeout.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
	Log        *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryTransport wraps base with the default retry policy.
func NewRetryTransport(base http.RoundTripper, log *slog.Logger) *RetryTransport {
	return &RetryTransport{
		Base:       base,
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultRetryBaseDelay,
		Timeout:    DefaultAttemptTimeout,
		Log:        log,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	sleep := t.sleep
	if sleep == nil {
		sleep = util.Sleep
	}
	log := t.Log
	if log == nil {
		log = slog.Default()
	}

	for attempt := 0; ; attempt++ {
		areq := req
		if attempt > 0 {
			areq = req.Clone(req.Context())
			if req.Body != nil && req.Body != http.NoBody {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				areq.Body = body
			}
		}

		resp, err := t.roundTrip(base, areq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError || attempt >= t.MaxRetries || !replayable(req) {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		delay := util.Backoff(attempt+1, t.BaseDelay)
		log.Warn("server error, retrying",
			"method", req.Method, "url", req.URL.String(),
			"status", resp.StatusCode, "attempt", attempt+1, "maxRetries", t.MaxRetries, "delay", delay)
		if err := sleep(req.Context(), delay); err != nil {
			return nil, err
		}
	}
}

func (t *RetryTransport) roundTrip(base http.RoundTripper, req *http.Request) (*http.Response, error) {
	if t.Timeout <= 0 {
		return base.RoundTrip(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), t.Timeout)
	resp, err := base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// replayable reports whether the request body can be sent again.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// cancelOnClose releases the per-attempt context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
