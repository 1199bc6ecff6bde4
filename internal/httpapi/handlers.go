package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradedesk/internal/metrics"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	processed, failed := s.worker.Stats()
	writeJSON(w, HealthJSON{
		Status:       "ok",
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		CacheEntries: s.cache.Len(),
		Processed:    processed,
		Failed:       failed,
		BarSource:    s.engine.BarSourceName(),
		MessageTypes: s.worker.Types(),
	})
}

// handleMarket proxies GET /api/market/<path> to the upstream <path>
// through the cache. maxAge (seconds) overrides the cache TTL and is not
// forwarded.
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing upstream path")
		return
	}
	query := r.URL.Query()
	maxAge, err := parseSeconds(query.Get("maxAge"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query.Del("maxAge")

	data, err := s.engine.Upstream().Raw(r.Context(), "/"+path, query, maxAge)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec, err := filterFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order := q.Get("order")
	if order == "" {
		order = metrics.OrderAsc
	}
	stocks, err := s.engine.Stocks(r.Context(), spec, q.Get("sortBy"), order)
	if err != nil {
		if isUpstream(err) {
			s.writeErr(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, stocks)
}

// handleOptionChain returns the processed chain and records a snapshot of
// it. record=false skips the snapshot.
func (s *Server) handleOptionChain(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.AnalyzeChain(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if r.URL.Query().Get("record") != "false" {
		if err := s.engine.SaveAnalysis(r.Context(), a); err != nil {
			s.log.Warn("saving oi snapshot", "symbol", a.Symbol, "error", err)
		}
	}
	writeJSON(w, a)
}

func (s *Server) handleOIHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	snaps, err := s.engine.OIHistory(r.Context(), symbol, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, OIHistoryJSON{Symbol: symbol, Snapshots: snaps})
}

func (s *Server) handleTechnicals(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid days %q", v))
			return
		}
		days = n
	}
	rep, err := s.engine.Technicals(r.Context(), r.PathValue("symbol"), days)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, rep)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.engine.Scan(r.Context(), req.Criteria)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, ScanJSON{Count: len(results), Results: results})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, CacheJSON{Entries: s.cache.Len(), TTL: s.cache.TTL().String()})
}

// handleClearCache clears one key, or every key when key is absent.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	cleared := key
	if key == "" {
		s.cache.ClearAll()
		cleared = "*"
	} else {
		s.cache.Clear(key)
	}
	s.log.Info("cache cleared", "key", cleared)
	writeJSON(w, CacheJSON{Cleared: cleared, Entries: s.cache.Len(), TTL: s.cache.TTL().String()})
}

func parseSeconds(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid maxAge %q", v)
	}
	return time.Duration(n) * time.Second, nil
}

// filterFromQuery reads a FilterSpec from index, sector, fno, search,
// minPrice, maxPrice, minVolume, minChange and maxChange.
func filterFromQuery(q url.Values) (metrics.FilterSpec, error) {
	spec := metrics.FilterSpec{
		Index:   q.Get("index"),
		Sector:  q.Get("sector"),
		Search:  q.Get("search"),
		FNOOnly: q.Get("fno") == "true",
	}
	bounds := []struct {
		name string
		dst  **float64
	}{
		{"minPrice", &spec.MinPrice},
		{"maxPrice", &spec.MaxPrice},
		{"minVolume", &spec.MinVolume},
		{"minChange", &spec.MinChangePercent},
		{"maxChange", &spec.MaxChangePercent},
	}
	for _, b := range bounds {
		v := q.Get(b.name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return spec, fmt.Errorf("invalid %s %q", b.name, v)
		}
		*b.dst = &f
	}
	return spec, nil
}

func isUpstream(err error) bool {
	return statusFor(err) != http.StatusInternalServerError
}
