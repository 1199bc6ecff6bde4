// Package sourcetest provides a fake upstream REST backend for tests.
package sourcetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Server is an httptest server serving fixture quotes, chains and bars.
// The NIFTY chain is the three-strike example whose max pain is 120.
// NOQUOTE has the same chain but its quote endpoint answers 404.
type Server struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

// StocksJSON is the /stocks fixture.
const StocksJSON = `{"data":[
	{"symbol":"INFY","sector":"IT","indices":["NIFTY 50"],"ltp":"1,500","pChange":2.0,
	 "high":1520,"low":1480,"volume":2000000,"avgVolume":1000000,"isFNO":true},
	{"symbol":"TCS","sector":"IT","indices":["NIFTY 50"],"lastPrice":3800,"changePercent":-1.5,
	 "high":3850,"low":3790,"volume":1000000,"avgVolume":1000000,"isFNO":true},
	{"symbol":"SMALLCO","sector":"Banking","lastPrice":95,"changePercent":0.5,
	 "high":96,"low":90,"volume":3000000,"avgVolume":1000000}
]}`

// ChainJSON is the /option-chain/NIFTY fixture.
const ChainJSON = `{"records":{"underlyingValue":109,"data":[
	{"strikePrice":100,"CE":{"openInterest":50,"changeinOpenInterest":5,"gamma":0.01},"PE":{"openInterest":0}},
	{"strikePrice":110,"CE":{"openInterest":0},"PE":{"openInterest":0}},
	{"strikePrice":120,"CE":{"openInterest":0},"PE":{"openInterest":80,"changeinOpenInterest":-3,"gamma":0.02}}
]}}`

// New starts the fake upstream; it is closed by t's cleanup when t is
// non-nil.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{hits: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stocks", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, StocksJSON)
	})
	mux.HandleFunc("GET /quote/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		switch sym := r.PathValue("symbol"); sym {
		case "NIFTY":
			fmt.Fprint(w, `{"symbol":"NIFTY","lastPrice":110}`)
		default:
			http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
		}
	})
	mux.HandleFunc("GET /option-chain/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("symbol") {
		case "NIFTY", "NOQUOTE":
			fmt.Fprint(w, ChainJSON)
		default:
			http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
		}
	})
	mux.HandleFunc("GET /historical/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
		if err != nil {
			http.Error(w, `{"error":"bad from"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"candles": Candles(from, 60)})
	})
	mux.HandleFunc("GET /indices", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"indices":["NIFTY 50"],"query":%q}`, r.URL.RawQuery)
	})

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		mux.ServeHTTP(w, r)
	}))
	if t != nil {
		t.Cleanup(s.Close)
	}
	return s
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Candles returns n daily bars starting at from with a gently rising close.
func Candles(from time.Time, n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		c := 100 + float64(i) + float64(i%3)
		out[i] = map[string]any{
			"date":   from.AddDate(0, 0, i).Format("2006-01-02"),
			"open":   c - 0.5,
			"high":   c + 1,
			"low":    c - 1,
			"close":  c,
			"volume": 1000 + 10*i,
		}
	}
	return out
}

// Path returns the upstream path for a symbol under prefix.
func Path(prefix, symbol string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.ToUpper(symbol)
}
