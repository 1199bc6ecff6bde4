package metrics

import (
	"fmt"
	"sort"
	"strings"

	"tradedesk/internal/domain"
)

// Candle resampling intervals.
const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
)

// AggregateCandles resamples bars into ISO-week or calendar-month buckets.
// Each bucket opens at its first bar, closes at its last, spans the
// extreme high and low, and sums volume. Input need not be sorted.
func AggregateCandles(candles []domain.Candle, interval string) ([]domain.Candle, error) {
	var bucket func(c domain.Candle) int
	switch strings.ToLower(interval) {
	case "", "1d", "d", IntervalDay, "daily":
		bucket = func(c domain.Candle) int {
			y, m, d := c.Time.Date()
			return y*10000 + int(m)*100 + d
		}
	case "1w", "w", IntervalWeek, "weekly":
		bucket = func(c domain.Candle) int {
			y, w := c.Time.ISOWeek()
			return y*100 + w
		}
	case "1mo", "mo", IntervalMonth, "monthly":
		bucket = func(c domain.Candle) int {
			return c.Time.Year()*100 + int(c.Time.Month())
		}
	default:
		return nil, fmt.Errorf("unknown candle interval %q", interval)
	}

	sorted := make([]domain.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	out := make([]domain.Candle, 0, len(sorted))
	key := -1
	for _, c := range sorted {
		k := bucket(c)
		if len(out) == 0 || k != key {
			out = append(out, c)
			key = k
			continue
		}
		cur := &out[len(out)-1]
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	return out, nil
}
