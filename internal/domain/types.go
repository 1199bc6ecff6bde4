// Package domain defines the canonical records shared by the fetch layer,
// the metrics engine, storage and the gateway. Upstream payload variants are
// normalized into these shapes at the JSON boundary (see normalize.go).
package domain

import (
	"strings"
	"time"
)

// Stock is the canonical quote record for a single listed instrument.
type Stock struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name,omitempty"`
	Sector        string   `json:"sector,omitempty"`
	Indices       []string `json:"indices,omitempty"`
	LastPrice     float64  `json:"lastPrice"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"changePercent"`
	Open          float64  `json:"open"`
	High          float64  `json:"high"`
	Low           float64  `json:"low"`
	PrevClose     float64  `json:"prevClose"`
	Volume        float64  `json:"volume"`
	AvgVolume     float64  `json:"avgVolume"`
	IsFNO         bool     `json:"isFNO"`
}

// InIndex reports whether the stock is a constituent of the named index.
// Comparison is case-insensitive.
func (s *Stock) InIndex(index string) bool {
	for _, ix := range s.Indices {
		if strings.EqualFold(ix, index) {
			return true
		}
	}
	return false
}

// OptionLeg holds the market data for one side (call or put) of a strike.
// Greeks are expected to be supplied by the upstream; they default to 0.
type OptionLeg struct {
	OpenInterest         float64 `json:"openInterest"`
	ChangeInOpenInterest float64 `json:"changeInOpenInterest"`
	Volume               float64 `json:"volume"`
	ImpliedVolatility    float64 `json:"impliedVolatility"`
	LastPrice            float64 `json:"lastPrice"`
	Change               float64 `json:"change"`
	Gamma                float64 `json:"gamma,omitempty"`
	Delta                float64 `json:"delta,omitempty"`
}

// OptionChainRow is one strike of an option chain. Either leg may be nil
// when the exchange lists no contract on that side.
type OptionChainRow struct {
	StrikePrice float64    `json:"strikePrice"`
	CE          *OptionLeg `json:"CE"`
	PE          *OptionLeg `json:"PE"`
}

// CallOI returns the call open interest, or 0 without a call leg.
func (r *OptionChainRow) CallOI() float64 {
	if r.CE == nil {
		return 0
	}
	return r.CE.OpenInterest
}

// PutOI returns the put open interest, or 0 without a put leg.
func (r *OptionChainRow) PutOI() float64 {
	if r.PE == nil {
		return 0
	}
	return r.PE.OpenInterest
}

// TechnicalSeries is the ordered input to indicator calculations. Highs,
// Lows and Volumes are optional, but when present must align with Closes.
type TechnicalSeries struct {
	Closes  []float64 `json:"closes"`
	Highs   []float64 `json:"highs,omitempty"`
	Lows    []float64 `json:"lows,omitempty"`
	Volumes []float64 `json:"volumes,omitempty"`
}

// Candle is a single OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// SeriesFromCandles splits bars into the parallel slices used by the
// indicator functions.
func SeriesFromCandles(candles []Candle) TechnicalSeries {
	s := TechnicalSeries{
		Closes:  make([]float64, len(candles)),
		Highs:   make([]float64, len(candles)),
		Lows:    make([]float64, len(candles)),
		Volumes: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Closes[i] = c.Close
		s.Highs[i] = c.High
		s.Lows[i] = c.Low
		s.Volumes[i] = c.Volume
	}
	return s
}
