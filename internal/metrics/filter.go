package metrics

import (
	"strings"

	"tradedesk/internal/domain"
)

// FilterSpec selects stocks. Every set field must match; nil and empty
// fields are ignored.
type FilterSpec struct {
	Index            string   `json:"index,omitempty"`
	Sector           string   `json:"sector,omitempty"`
	MinPrice         *float64 `json:"minPrice,omitempty"`
	MaxPrice         *float64 `json:"maxPrice,omitempty"`
	MinVolume        *float64 `json:"minVolume,omitempty"`
	MinChangePercent *float64 `json:"minChange,omitempty"`
	MaxChangePercent *float64 `json:"maxChange,omitempty"`
	FNOOnly          bool     `json:"fnoOnly,omitempty"`
	Search           string   `json:"search,omitempty"`
}

// IsZero reports whether no filter is set.
func (f FilterSpec) IsZero() bool {
	return f.Index == "" && f.Sector == "" && f.MinPrice == nil && f.MaxPrice == nil &&
		f.MinVolume == nil && f.MinChangePercent == nil && f.MaxChangePercent == nil &&
		!f.FNOOnly && strings.TrimSpace(f.Search) == ""
}

// Match reports whether s satisfies every set filter.
func (f FilterSpec) Match(s *domain.Stock) bool {
	if f.Index != "" && !s.InIndex(f.Index) {
		return false
	}
	if f.Sector != "" && !strings.EqualFold(s.Sector, f.Sector) {
		return false
	}
	if f.MinPrice != nil && s.LastPrice < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && s.LastPrice > *f.MaxPrice {
		return false
	}
	if f.MinVolume != nil && s.Volume < *f.MinVolume {
		return false
	}
	if f.MinChangePercent != nil && s.ChangePercent < *f.MinChangePercent {
		return false
	}
	if f.MaxChangePercent != nil && s.ChangePercent > *f.MaxChangePercent {
		return false
	}
	if f.FNOOnly && !s.IsFNO {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(s.Symbol), q) && !strings.Contains(strings.ToLower(s.Name), q) {
			return false
		}
	}
	return true
}

// FilterStocks returns the items matching spec, in input order. An empty
// spec returns a copy of items.
func FilterStocks(items []domain.Stock, spec FilterSpec) []domain.Stock {
	out := make([]domain.Stock, 0, len(items))
	if spec.IsZero() {
		return append(out, items...)
	}
	for i := range items {
		if spec.Match(&items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}
