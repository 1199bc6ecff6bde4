package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradedesk/internal/util"
)

// StatusError is returned when the upstream answers with a 4xx or 5xx
// status (5xx only after retries are exhausted).
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d, body: %s", e.Method, e.URL, e.StatusCode, body)
}

// Temporary reports whether the failure was a server-side error.
func (e *StatusError) Temporary() bool { return e.StatusCode >= http.StatusInternalServerError }

// RequestOption adjusts an outgoing request, typically to add headers.
type RequestOption func(*http.Request)

// WithHeader sets a header when value is non-empty.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		if value != "" {
			r.Header.Set(key, value)
		}
	}
}

// WithBearer sets the Authorization header when token is non-empty.
func WithBearer(token string) RequestOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// DhanHeaders sets the broker token, broker client and user headers that
// the backend expects on broker-scoped endpoints. Empty values are skipped.
func DhanHeaders(token, clientID, userID string) RequestOption {
	return func(r *http.Request) {
		WithHeader("X-Dhan-Token", token)(r)
		WithHeader("X-Dhan-Client", clientID)(r)
		WithHeader("X-User-Id", userID)(r)
	}
}

// ClientOptions configures NewClient. Zero values select the defaults.
type ClientOptions struct {
	BaseURL         string
	Timeout         time.Duration // per attempt
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RateLimitPerMin int
	Transport       http.RoundTripper
	Logger          *slog.Logger
}

// Client talks JSON to the upstream REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewClient creates a Client whose transport retries 5xx responses.
func NewClient(opts ClientOptions) *Client {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	rt := NewRetryTransport(opts.Transport, log.With("component", "fetch-client"))
	if opts.Timeout > 0 {
		rt.Timeout = opts.Timeout
	}
	if opts.MaxRetries > 0 {
		rt.MaxRetries = opts.MaxRetries
	}
	if opts.RetryBaseDelay > 0 {
		rt.BaseDelay = opts.RetryBaseDelay
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Transport: rt},
		limiter: util.NewRateLimiter(opts.RateLimitPerMin, 5),
		log:     log,
	}
}

// BaseURL returns the upstream base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends a request and returns the response body. A non-nil body is
// encoded as JSON. Statuses >= 400 become *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, opts ...RequestOption) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, u, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{Method: method, URL: u, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// Get issues a GET and returns the raw body.
func (c *Client) Get(ctx context.Context, path string, query url.Values, opts ...RequestOption) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil, opts...)
}

// GetJSON issues a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any, opts ...RequestOption) error {
	data, err := c.Get(ctx, path, query, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// PostJSON sends in as JSON and decodes the JSON reply into out. A nil out
// discards the reply.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any, opts ...RequestOption) error {
	data, err := c.Do(ctx, http.MethodPost, path, nil, in, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
