package worker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"tradedesk/internal/domain"
	"tradedesk/internal/metrics"
)

// Message types served by New.
const (
	TypeSortStocks           = "sortStocks"
	TypeFilterStocks         = "filterStocks"
	TypeCalculateTechnicals  = "calculateTechnicals"
	TypeProcessOptionChain   = "processOptionChain"
	TypeComputeGammaExposure = "computeGammaExposure"
	TypeCalculateMaxPain     = "calculateMaxPain"
	TypeAggregateOIData      = "aggregateOIData"
	TypeScanStocks           = "scanStocks"
	TypeCalculatePivotPoints = "calculatePivotPoints"
	TypeAggregateCandles     = "aggregateCandles"
)

// SortPayload is the payload of sortStocks.
type SortPayload struct {
	Stocks []domain.Stock `json:"stocks"`
	SortBy string         `json:"sortBy"`
	Order  string         `json:"order"`
}

// FilterPayload is the payload of filterStocks.
type FilterPayload struct {
	Stocks  []domain.Stock     `json:"stocks"`
	Filters metrics.FilterSpec `json:"filters"`
}

// TechnicalsPayload is the payload of calculateTechnicals. Candles are used
// when no closes are given.
type TechnicalsPayload struct {
	domain.TechnicalSeries
	Candles []domain.Candle `json:"candles,omitempty"`
}

// ChainPayload is the payload of the option-chain messages. Spot is ignored
// by calculateMaxPain and aggregateOIData.
type ChainPayload struct {
	Chain []domain.OptionChainRow `json:"chain"`
	Spot  float64                 `json:"spot"`
}

// ScanPayload is the payload of scanStocks.
type ScanPayload struct {
	Stocks   []domain.Stock       `json:"stocks"`
	Criteria metrics.ScanCriteria `json:"criteria"`
}

// PivotPayload is the payload of calculatePivotPoints.
type PivotPayload struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// CandlesPayload is the payload of aggregateCandles.
type CandlesPayload struct {
	Candles  []domain.Candle `json:"candles"`
	Interval string          `json:"interval"`
}

func registerMetrics(w *Worker) {
	w.Register(TypeSortStocks, handle(func(p SortPayload) (any, error) {
		return metrics.SortStocks(p.Stocks, p.SortBy, p.Order)
	}))
	w.Register(TypeFilterStocks, handle(func(p FilterPayload) (any, error) {
		return metrics.FilterStocks(p.Stocks, p.Filters), nil
	}))
	w.Register(TypeCalculateTechnicals, handle(func(p TechnicalsPayload) (any, error) {
		series := p.TechnicalSeries
		if len(series.Closes) == 0 && len(p.Candles) > 0 {
			series = domain.SeriesFromCandles(p.Candles)
		}
		return metrics.CalculateTechnicals(series)
	}))
	w.Register(TypeProcessOptionChain, handle(func(p ChainPayload) (any, error) {
		return metrics.ProcessOptionChain(p.Chain, p.Spot), nil
	}))
	w.Register(TypeComputeGammaExposure, handle(func(p ChainPayload) (any, error) {
		return metrics.ComputeGammaExposure(p.Chain, p.Spot), nil
	}))
	w.Register(TypeCalculateMaxPain, handle(func(p ChainPayload) (any, error) {
		return metrics.CalculateMaxPain(p.Chain)
	}))
	w.Register(TypeAggregateOIData, handle(func(p ChainPayload) (any, error) {
		return metrics.AggregateOIData(p.Chain), nil
	}))
	w.Register(TypeScanStocks, handle(func(p ScanPayload) (any, error) {
		return metrics.ScanStocks(p.Stocks, p.Criteria), nil
	}))
	w.Register(TypeCalculatePivotPoints, handle(func(p PivotPayload) (any, error) {
		return metrics.CalculatePivotPoints(p.High, p.Low, p.Close)
	}))
	w.Register(TypeAggregateCandles, handle(func(p CandlesPayload) (any, error) {
		return metrics.AggregateCandles(p.Candles, p.Interval)
	}))
}

// handle adapts a typed function into a HandlerFunc that decodes the
// payload first. A missing payload decodes as an empty object.
func handle[P any](fn func(P) (any, error)) HandlerFunc {
	return func(raw json.RawMessage) (any, error) {
		var p P
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &p); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		return fn(p)
	}
}
