// Package source reads market data from the upstream REST backend and from
// Alpaca, normalizing both into domain records.
package source

import (
	"context"
	"time"

	"tradedesk/internal/domain"
)

// BarSource supplies daily candles.
type BarSource interface {
	// Name returns the source identifier (e.g. "alpaca", "upstream").
	Name() string

	// DailyBars returns daily candles for symbol within [start, end],
	// oldest first.
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Candle, error)
}

// DateRange is an inclusive range of days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the range covering the n calendar days up to now.
func LastDays(now time.Time, n int) DateRange {
	end := now.UTC()
	return DateRange{Start: end.AddDate(0, 0, -n), End: end}
}
