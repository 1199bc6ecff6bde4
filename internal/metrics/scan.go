package metrics

import (
	"math"
	"sort"

	"tradedesk/internal/domain"
)

// ScanCriteria is a filter plus scoring weights. A zero weight leaves its
// term out of the score. Limit <= 0 returns every match.
type ScanCriteria struct {
	FilterSpec
	VolumeWeight        float64 `json:"volumeWeight,omitempty"`
	MomentumWeight      float64 `json:"momentumWeight,omitempty"`
	PricePositionWeight float64 `json:"pricePositionWeight,omitempty"`
	Limit               int     `json:"limit,omitempty"`
}

// ScanResult is a scored stock.
type ScanResult struct {
	Stock         domain.Stock `json:"stock"`
	Score         float64      `json:"score"`
	VolumeRatio   float64      `json:"volumeRatio"`
	Momentum      float64      `json:"momentum"`
	PricePosition float64      `json:"pricePosition"`
}

// ScanStocks filters items by criteria, then scores each match as
// volumeWeight*volumeRatio + momentumWeight*|changePercent| +
// pricePositionWeight*pricePosition. Results are sorted by score, highest
// first; equal scores keep input order.
func ScanStocks(items []domain.Stock, criteria ScanCriteria) []ScanResult {
	matched := FilterStocks(items, criteria.FilterSpec)
	out := make([]ScanResult, 0, len(matched))
	for _, s := range matched {
		r := ScanResult{
			Stock:         s,
			VolumeRatio:   VolumeRatio(s.Volume, s.AvgVolume),
			Momentum:      math.Abs(s.ChangePercent),
			PricePosition: PricePosition(s.LastPrice, s.High, s.Low),
		}
		if criteria.VolumeWeight != 0 {
			r.Score += criteria.VolumeWeight * r.VolumeRatio
		}
		if criteria.MomentumWeight != 0 {
			r.Score += criteria.MomentumWeight * r.Momentum
		}
		if criteria.PricePositionWeight != 0 {
			r.Score += criteria.PricePositionWeight * r.PricePosition
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if criteria.Limit > 0 && len(out) > criteria.Limit {
		out = out[:criteria.Limit]
	}
	return out
}

// VolumeRatio is volume over average volume, 0 without an average.
func VolumeRatio(volume, avg float64) float64 {
	if avg <= 0 {
		return 0
	}
	return volume / avg
}

// PricePosition returns where price sits within [low, high], clamped to
// 0..1. A flat range gives 0.5.
func PricePosition(price, high, low float64) float64 {
	if high <= low {
		return 0.5
	}
	pos := (price - low) / (high - low)
	return math.Max(0, math.Min(1, pos))
}
