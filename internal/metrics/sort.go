// Package metrics holds the derived-metrics computations: sorting and
// filtering of quote lists, technical indicators, option-chain analytics and
// the stock scanner. Every function is pure and leaves its inputs untouched.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"tradedesk/internal/domain"
)

var (
	// ErrInsufficientData is returned when an input is too short or empty
	// for a computation that has no meaningful null result.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrEmptyChain is returned by option analytics given no strikes.
	ErrEmptyChain = errors.New("empty option chain")
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

type stringField func(*domain.Stock) string
type numberField func(*domain.Stock) float64

var stringFields = map[string]stringField{
	"symbol": func(s *domain.Stock) string { return s.Symbol },
	"name":   func(s *domain.Stock) string { return s.Name },
	"sector": func(s *domain.Stock) string { return s.Sector },
}

var numberFields = map[string]numberField{
	"lastprice":     func(s *domain.Stock) float64 { return s.LastPrice },
	"ltp":           func(s *domain.Stock) float64 { return s.LastPrice },
	"price":         func(s *domain.Stock) float64 { return s.LastPrice },
	"change":        func(s *domain.Stock) float64 { return s.Change },
	"changepercent": func(s *domain.Stock) float64 { return s.ChangePercent },
	"pchange":       func(s *domain.Stock) float64 { return s.ChangePercent },
	"open":          func(s *domain.Stock) float64 { return s.Open },
	"high":          func(s *domain.Stock) float64 { return s.High },
	"low":           func(s *domain.Stock) float64 { return s.Low },
	"prevclose":     func(s *domain.Stock) float64 { return s.PrevClose },
	"volume":        func(s *domain.Stock) float64 { return s.Volume },
	"avgvolume":     func(s *domain.Stock) float64 { return s.AvgVolume },
}

// SortStocks returns a copy of items stably sorted by the named field.
// Field names are case-insensitive; order is "asc" (default) or "desc".
func SortStocks(items []domain.Stock, sortBy, order string) ([]domain.Stock, error) {
	desc := false
	switch strings.ToLower(order) {
	case "", OrderAsc:
	case OrderDesc:
		desc = true
	default:
		return nil, fmt.Errorf("unknown sort order %q", order)
	}

	out := make([]domain.Stock, len(items))
	copy(out, items)

	key := strings.ToLower(sortBy)
	if f, ok := stringFields[key]; ok {
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return f(&out[i]) > f(&out[j])
			}
			return f(&out[i]) < f(&out[j])
		})
		return out, nil
	}
	if f, ok := numberFields[key]; ok {
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return f(&out[i]) > f(&out[j])
			}
			return f(&out[i]) < f(&out[j])
		})
		return out, nil
	}
	return nil, fmt.Errorf("unknown sort field %q", sortBy)
}
