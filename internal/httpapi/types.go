package httpapi

import (
	"tradedesk/internal/metrics"
	"tradedesk/internal/store"
)

// HealthJSON is the /api/health response.
type HealthJSON struct {
	Status       string   `json:"status"`
	Uptime       string   `json:"uptime"`
	CacheEntries int      `json:"cacheEntries"`
	Processed    int64    `json:"processed"`
	Failed       int64    `json:"failed"`
	BarSource    string   `json:"barSource"`
	MessageTypes []string `json:"messageTypes"`
}

// CacheJSON describes the cache after a stats or clear request.
type CacheJSON struct {
	Cleared string `json:"cleared,omitempty"`
	Entries int    `json:"entries"`
	TTL     string `json:"ttl"`
}

// ScanRequest is the /api/scan request body.
type ScanRequest struct {
	Criteria metrics.ScanCriteria `json:"criteria"`
}

// ScanJSON is the /api/scan response.
type ScanJSON struct {
	Count   int                  `json:"count"`
	Results []metrics.ScanResult `json:"results"`
}

// OIHistoryJSON is the /api/oi-history response.
type OIHistoryJSON struct {
	Symbol    string             `json:"symbol"`
	Snapshots []store.OISnapshot `json:"snapshots"`
}
