// Package tradedesk is a Go client for the tradedesk-server HTTP gateway.
package tradedesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides a Go SDK for interacting with the tradedesk-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new tradedesk API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for a non-2xx gateway response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradedesk: %d %s", e.Status, e.Message)
}

// Health mirrors the /api/health response.
type Health struct {
	Status       string   `json:"status"`
	Uptime       string   `json:"uptime"`
	CacheEntries int      `json:"cacheEntries"`
	Processed    int64    `json:"processed"`
	Failed       int64    `json:"failed"`
	BarSource    string   `json:"barSource"`
	MessageTypes []string `json:"messageTypes"`
}

// CacheStatus mirrors the /api/cache response.
type CacheStatus struct {
	Cleared string `json:"cleared,omitempty"`
	Entries int    `json:"entries"`
	TTL     string `json:"ttl"`
}

// Reply is a worker response. Result holds the raw result when Success is
// true; Error holds the failure message otherwise.
type Reply struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals a successful result into v.
func (r *Reply) Decode(v any) error {
	if !r.Success {
		return fmt.Errorf("%s: %s", r.ID, r.Error)
	}
	return json.Unmarshal(r.Result, v)
}

// Health retrieves the gateway status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &h)
	return h, err
}

// Compute submits one worker request. payload is marshaled to JSON unless
// it is already a json.RawMessage.
func (c *Client) Compute(ctx context.Context, msgType, id string, payload any) (*Reply, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling payload: %w", err)
		}
		raw = b
	}
	body := struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		ID      string          `json:"id"`
	}{msgType, raw, id}

	var reply Reply
	if err := c.do(ctx, http.MethodPost, "/api/compute", nil, body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// OptionChain retrieves the processed option chain for symbol. The snapshot
// is not recorded unless record is true.
func (c *Client) OptionChain(ctx context.Context, symbol string, record bool) (json.RawMessage, error) {
	q := url.Values{}
	if !record {
		q.Set("record", "false")
	}
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/option-chain/"+url.PathEscape(symbol), q, nil, &out)
	return out, err
}

// OIHistory retrieves the most recent OI snapshots for symbol.
func (c *Client) OIHistory(ctx context.Context, symbol string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/oi-history/"+url.PathEscape(symbol), q, nil, &out)
	return out, err
}

// ClearCache clears key, or the whole cache when key is empty.
func (c *Client) ClearCache(ctx context.Context, key string) (CacheStatus, error) {
	q := url.Values{}
	if key != "" {
		q.Set("key", key)
	}
	var st CacheStatus
	err := c.do(ctx, http.MethodDelete, "/api/cache", q, nil, &st)
	return st, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
