package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradedesk/internal/engine"
	"tradedesk/internal/fetch"
	"tradedesk/internal/source"
	"tradedesk/internal/source/sourcetest"
	"tradedesk/internal/store"
	"tradedesk/internal/worker"
)

type testEnv struct {
	upstream *sourcetest.Server
	gateway  *httptest.Server
	cache    *fetch.Cache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	up := sourcetest.New(t)

	cache := fetch.NewCache(time.Minute, log)
	client := fetch.NewClient(fetch.ClientOptions{BaseURL: up.URL, Logger: log})
	upstream := source.NewUpstream(client, cache, log)

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "gw.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	eng := engine.NewEngine(upstream, nil, db, store.NewParquetStore(t.TempDir()), log)

	ctx, cancel := context.WithCancel(context.Background())
	w := worker.New(16, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Run(ctx)
	}()
	hub := NewHub(log)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()
	eng.SetPublisher(hub)

	gw := httptest.NewServer(NewServer(eng, w, hub, log).Handler())
	t.Cleanup(func() {
		gw.Close()
		cancel()
		<-workerDone
		<-hubDone
		db.Close()
	})
	return &testEnv{upstream: up, gateway: gw, cache: cache}
}

func (e *testEnv) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.gateway.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var h HealthJSON
	if code := env.do(t, "GET", "/api/health", "", &h); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if h.Status != "ok" || h.BarSource != "upstream" || len(h.MessageTypes) != 10 {
		t.Errorf("health = %+v", h)
	}
}

func TestMarketPassThroughIsCached(t *testing.T) {
	env := newTestEnv(t)

	var first, second map[string]any
	env.do(t, "GET", "/api/market/indices?b=2&a=1&maxAge=60", "", &first)
	env.do(t, "GET", "/api/market/indices?a=1&b=2", "", &second)
	if first["query"] != "a=1&b=2" || second["query"] != "a=1&b=2" {
		t.Errorf("maxAge should not be forwarded: %v / %v", first, second)
	}
	if n := env.upstream.Hits("/indices"); n != 1 {
		t.Errorf("upstream hits = %d, want 1", n)
	}

	var errBody map[string]string
	if code := env.do(t, "GET", "/api/market/indices?maxAge=soon", "", &errBody); code != http.StatusBadRequest {
		t.Errorf("bad maxAge status = %d", code)
	}
	if code := env.do(t, "GET", "/api/market/nowhere", "", &errBody); code != http.StatusNotFound {
		t.Errorf("upstream 404 status = %d, want 404", code)
	}
}

func TestMarketAndTypedRoutesShareCache(t *testing.T) {
	stocks := func(t *testing.T, env *testEnv) {
		var out []map[string]any
		if code := env.do(t, "GET", "/api/stocks", "", &out); code != http.StatusOK || len(out) != 3 {
			t.Errorf("/api/stocks = %d, %d stocks", code, len(out))
		}
	}
	market := func(path string) func(*testing.T, *testEnv) {
		return func(t *testing.T, env *testEnv) {
			var out json.RawMessage
			if code := env.do(t, "GET", "/api/market"+path, "", &out); code != http.StatusOK {
				t.Errorf("/api/market%s = %d %s", path, code, out)
			}
		}
	}
	chain := func(t *testing.T, env *testEnv) {
		var a engine.ChainAnalysis
		if code := env.do(t, "GET", "/api/option-chain/NIFTY?record=false", "", &a); code != http.StatusOK {
			t.Fatalf("/api/option-chain = %d", code)
		}
		if a.Spot != 110 {
			t.Errorf("spot = %v, want the quote's 110", a.Spot)
		}
	}

	tests := []struct {
		name  string
		steps []func(*testing.T, *testEnv)
		path  string
	}{
		{"stocks then market", []func(*testing.T, *testEnv){stocks, market("/stocks")}, "/stocks"},
		{"market then stocks", []func(*testing.T, *testEnv){market("/stocks"), stocks}, "/stocks"},
		{"quote then chain", []func(*testing.T, *testEnv){market("/quote/NIFTY"), chain}, "/quote/NIFTY"},
		{"chain then quote", []func(*testing.T, *testEnv){chain, market("/quote/NIFTY")}, "/quote/NIFTY"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			for _, step := range tc.steps {
				step(t, env)
			}
			if n := env.upstream.Hits(tc.path); n != 1 {
				t.Errorf("upstream hits for %s = %d, want 1", tc.path, n)
			}
		})
	}
}

func TestOptionChainRecordsSnapshot(t *testing.T) {
	env := newTestEnv(t)

	var a engine.ChainAnalysis
	if code := env.do(t, "GET", "/api/option-chain/nifty", "", &a); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if a.MaxPain == nil || a.MaxPain.Strike != 120 || a.Spot != 110 || len(a.Rows) != 3 {
		t.Errorf("analysis = %+v", a)
	}

	// record=false is served from the cache and stores nothing.
	env.do(t, "GET", "/api/option-chain/NIFTY?record=false", "", &a)

	var hist OIHistoryJSON
	if code := env.do(t, "GET", "/api/oi-history/NIFTY?limit=5", "", &hist); code != http.StatusOK {
		t.Fatalf("history status = %d", code)
	}
	if hist.Symbol != "NIFTY" || len(hist.Snapshots) != 1 || hist.Snapshots[0].MaxPain != 120 {
		t.Errorf("history = %+v", hist)
	}
	if env.upstream.Hits("/option-chain/NIFTY") != 1 {
		t.Errorf("chain hits = %d, want 1", env.upstream.Hits("/option-chain/NIFTY"))
	}

	var errBody map[string]string
	if code := env.do(t, "GET", "/api/option-chain/UNKNOWN", "", &errBody); code != http.StatusNotFound {
		t.Errorf("unknown symbol status = %d, want 404", code)
	}
	if code := env.do(t, "GET", "/api/oi-history/NIFTY?limit=x", "", &errBody); code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", code)
	}
}

func TestTechnicalsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var rep engine.TechnicalsReport
	if code := env.do(t, "GET", "/api/technicals/INFY?days=100", "", &rep); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if rep.Bars != 60 || rep.Technicals.SMA50 == nil || rep.Technicals.SMA200 != nil || rep.Pivots == nil {
		t.Errorf("report = %+v", rep)
	}

	var errBody map[string]string
	if code := env.do(t, "GET", "/api/technicals/INFY?days=-1", "", &errBody); code != http.StatusBadRequest {
		t.Errorf("bad days status = %d", code)
	}
}

func TestStocksAndScan(t *testing.T) {
	env := newTestEnv(t)

	var stocks []map[string]any
	if code := env.do(t, "GET", "/api/stocks?fno=true&sortBy=changePercent&order=desc", "", &stocks); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(stocks) != 2 || stocks[0]["symbol"] != "INFY" {
		t.Errorf("stocks = %v", stocks)
	}

	var errBody map[string]string
	if code := env.do(t, "GET", "/api/stocks?sortBy=colour", "", &errBody); code != http.StatusBadRequest {
		t.Errorf("unknown sort field status = %d", code)
	}
	if code := env.do(t, "GET", "/api/stocks?minPrice=cheap", "", &errBody); code != http.StatusBadRequest {
		t.Errorf("bad minPrice status = %d", code)
	}

	var scan ScanJSON
	body := `{"criteria":{"minPrice":100,"momentumWeight":1}}`
	if code := env.do(t, "POST", "/api/scan", body, &scan); code != http.StatusOK {
		t.Fatalf("scan status = %d", code)
	}
	if scan.Count != 2 || scan.Results[0].Stock.Symbol != "INFY" {
		t.Errorf("scan = %+v", scan)
	}
	if code := env.do(t, "POST", "/api/scan", "", &errBody); code != http.StatusBadRequest {
		t.Errorf("empty scan body status = %d", code)
	}
}

func TestComputeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var resp struct {
		ID      string          `json:"id"`
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   string          `json:"error"`
	}
	body := `{"type":"calculatePivotPoints","id":"p1","payload":{"high":110,"low":90,"close":100}}`
	if code := env.do(t, "POST", "/api/compute", body, &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !resp.Success || resp.ID != "p1" || !strings.Contains(string(resp.Result), `"pivot":100`) {
		t.Errorf("response = %+v (%s)", resp, resp.Result)
	}

	resp.Success = true
	env.do(t, "POST", "/api/compute", `{"type":"nope","id":"x"}`, &resp)
	if resp.Success || resp.ID != "x" || resp.Error == "" {
		t.Errorf("unknown type response = %+v", resp)
	}

	var errBody map[string]string
	if code := env.do(t, "POST", "/api/compute", `{"type":`, &errBody); code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d", code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/api/market/indices", "", nil)
	env.do(t, "GET", "/api/option-chain/NIFTY?record=false", "", nil)

	var c CacheJSON
	env.do(t, "GET", "/api/cache", "", &c)
	if c.Entries != 3 || c.TTL != "1m0s" {
		t.Errorf("cache stats = %+v", c)
	}

	env.do(t, "DELETE", "/api/cache?key=/indices", "", &c)
	if c.Cleared != "/indices" || c.Entries != 2 {
		t.Errorf("clear one = %+v", c)
	}
	env.do(t, "DELETE", "/api/cache", "", &c)
	if c.Cleared != "*" || c.Entries != 0 {
		t.Errorf("clear all = %+v", c)
	}

	env.do(t, "GET", "/api/market/indices", "", nil)
	if n := env.upstream.Hits("/indices"); n != 2 {
		t.Errorf("hits after clear = %d, want 2", n)
	}
}

func wsURL(base, path string) string {
	return "ws" + strings.TrimPrefix(base, "http") + path
}

func TestComputeWebSocket(t *testing.T) {
	env := newTestEnv(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.gateway.URL, "/ws/compute"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	frames := []string{
		`{"type":"calculateMaxPain","id":"a","payload":{"chain":[{"strikePrice":100,"CE":{"oi":50}},{"strikePrice":110},{"strikePrice":120,"PE":{"oi":80}}]}}`,
		`not json`,
		`{"type":"unknown","id":"c"}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatal(err)
		}
	}

	got := map[string]worker.Response{}
	for i := 0; i < len(frames); i++ {
		var resp worker.Response
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		got[resp.ID] = resp
	}
	if r := got["a"]; !r.Success {
		t.Errorf("max pain response = %+v", r)
	}
	if r := got[""]; r.Success || !strings.Contains(r.Error, "invalid request") {
		t.Errorf("invalid frame response = %+v", r)
	}
	if r := got["c"]; r.Success || r.Error == "" {
		t.Errorf("unknown type response = %+v", r)
	}
}

func TestSnapshotWebSocket(t *testing.T) {
	env := newTestEnv(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.gateway.URL, "/ws/snapshots"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Registration is asynchronous; keep producing snapshots until the
	// subscriber sees one.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(50 * time.Millisecond):
			}
			env.cache.ClearAll()
			if resp, err := http.Get(env.gateway.URL + "/api/option-chain/NIFTY"); err == nil {
				resp.Body.Close()
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev struct {
		Topic string           `json:"topic"`
		Data  store.OISnapshot `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("no snapshot event received: %v", err)
	}
	if ev.Topic != engine.TopicSnapshot || ev.Data.Symbol != "NIFTY" || ev.Data.MaxPain != 120 {
		t.Errorf("event = %+v", ev)
	}
}
