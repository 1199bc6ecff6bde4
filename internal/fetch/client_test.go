package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestClientGetJSONHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/quotes" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "NIFTY" {
			t.Errorf("symbol = %q", r.URL.Query().Get("symbol"))
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Dhan-Token"); got != "dt" {
			t.Errorf("X-Dhan-Token = %q", got)
		}
		if got := r.Header.Get("X-Dhan-Client"); got != "dc" {
			t.Errorf("X-Dhan-Client = %q", got)
		}
		if _, ok := r.Header["X-User-Id"]; ok {
			t.Error("empty user id should not be sent")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"lastPrice": 22000.5}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL + "/"})
	var out struct {
		LastPrice float64 `json:"lastPrice"`
	}
	err := c.GetJSON(context.Background(), "/api/quotes", url.Values{"symbol": {"NIFTY"}}, &out,
		WithBearer("tok"), DhanHeaders("dt", "dc", ""))
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.LastPrice != 22000.5 {
		t.Errorf("LastPrice = %v", out.LastPrice)
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such symbol", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	_, err := c.Get(context.Background(), "api/quotes/XYZ", nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound || se.Temporary() {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestClientPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var in map[string]int
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]int{"sum": in["a"] + in["b"]})
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	var out map[string]int
	if err := c.PostJSON(context.Background(), "/sum", map[string]int{"a": 2, "b": 3}, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out["sum"] != 5 {
		t.Errorf("sum = %d, want 5", out["sum"])
	}
	if err := c.PostJSON(context.Background(), "/sum", map[string]int{}, nil); err != nil {
		t.Errorf("PostJSON with nil out: %v", err)
	}
}

func TestClientCachedFetch(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	cache := NewCache(0, nil)
	ctx := context.Background()

	get := func(ctx context.Context) ([]int, error) {
		var out []int
		err := c.GetJSON(ctx, "/api/oi", nil, &out)
		return out, err
	}
	a, err := FetchAs(ctx, cache, Key("/api/oi", nil), 0, get)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := FetchAs(ctx, cache, Key("/api/oi", nil), 0, get)
	if len(a) != 3 || len(b) != 3 || hits != 1 {
		t.Errorf("a=%v b=%v hits=%d; want one upstream hit", a, b, hits)
	}
}
