package metrics

import (
	"math"
	"strconv"

	"tradedesk/internal/domain"
)

// ProcessedRow is an option chain row with per-strike derived values.
type ProcessedRow struct {
	StrikePrice float64           `json:"strikePrice"`
	CE          *domain.OptionLeg `json:"CE"`
	PE          *domain.OptionLeg `json:"PE"`
	TotalOI     float64           `json:"totalOI"`
	OIDiff      float64           `json:"oiDiff"`
	PCR         float64           `json:"pcr"`
	IsATM       bool              `json:"isATM,omitempty"`
}

// ProcessOptionChain adds total OI, call-minus-put OI and the per-strike
// put/call ratio to each row. A call OI of 0 counts as 1 in the ratio.
// The strike nearest spot is flagged as at-the-money when spot > 0.
func ProcessOptionChain(rows []domain.OptionChainRow, spot float64) []ProcessedRow {
	out := make([]ProcessedRow, len(rows))
	atm := -1
	if spot > 0 {
		atm = nearestStrike(rows, spot)
	}
	for i, r := range rows {
		ce, pe := r.CallOI(), r.PutOI()
		denom := ce
		if denom == 0 {
			denom = 1
		}
		out[i] = ProcessedRow{
			StrikePrice: r.StrikePrice,
			CE:          r.CE,
			PE:          r.PE,
			TotalOI:     ce + pe,
			OIDiff:      ce - pe,
			PCR:         pe / denom,
			IsATM:       i == atm,
		}
	}
	return out
}

func nearestStrike(rows []domain.OptionChainRow, spot float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, r := range rows {
		if d := math.Abs(r.StrikePrice - spot); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// GammaExposure is dealer gamma exposure per strike and in total.
type GammaExposure struct {
	ByStrike map[string]float64 `json:"byStrike"`
	Total    float64            `json:"total"`
}

// ComputeGammaExposure computes (callGamma*callOI - putGamma*putOI) *
// spot^2 * 0.01 for each strike. Gammas must already be on the legs; a
// missing leg contributes 0. Strikes are keyed by their shortest decimal
// form ("22000", "22050.5").
func ComputeGammaExposure(rows []domain.OptionChainRow, spot float64) GammaExposure {
	g := GammaExposure{ByStrike: make(map[string]float64, len(rows))}
	scale := spot * spot * 0.01
	for _, r := range rows {
		var call, put float64
		if r.CE != nil {
			call = r.CE.Gamma * r.CE.OpenInterest
		}
		if r.PE != nil {
			put = r.PE.Gamma * r.PE.OpenInterest
		}
		gex := (call - put) * scale
		g.ByStrike[StrikeKey(r.StrikePrice)] += gex
		g.Total += gex
	}
	return g
}

// StrikeKey formats a strike for use as a map key.
func StrikeKey(strike float64) string {
	return strconv.FormatFloat(strike, 'f', -1, 64)
}

// MaxPain is the strike at which option writers pay out the least.
type MaxPain struct {
	Strike float64 `json:"strike"`
	Pain   float64 `json:"totalPain"`
}

// CalculateMaxPain evaluates every strike as the expiry price and sums the
// intrinsic value owed on all open contracts: calls below the candidate
// and puts above it. The candidate with the smallest total wins; ties go
// to the earlier row.
func CalculateMaxPain(rows []domain.OptionChainRow) (MaxPain, error) {
	if len(rows) == 0 {
		return MaxPain{}, ErrEmptyChain
	}
	best := MaxPain{Pain: math.Inf(1)}
	for _, candidate := range rows {
		k := candidate.StrikePrice
		pain := 0.0
		for _, r := range rows {
			if k > r.StrikePrice {
				pain += r.CallOI() * (k - r.StrikePrice)
			}
			if k < r.StrikePrice {
				pain += r.PutOI() * (r.StrikePrice - k)
			}
		}
		if pain < best.Pain {
			best = MaxPain{Strike: k, Pain: pain}
		}
	}
	return best, nil
}

// OISummary totals open interest across a chain.
type OISummary struct {
	TotalCallOI       float64 `json:"totalCallOI"`
	TotalPutOI        float64 `json:"totalPutOI"`
	TotalCallOIChange float64 `json:"totalCallOIChange"`
	TotalPutOIChange  float64 `json:"totalPutOIChange"`
	TotalCallVolume   float64 `json:"totalCallVolume"`
	TotalPutVolume    float64 `json:"totalPutVolume"`
	PCR               float64 `json:"pcr"`
	NetOIChange       float64 `json:"netOIChange"`
}

// AggregateOIData sums OI, OI change and volume per side. PCR is put OI
// over call OI, 0 when there is no call OI. NetOIChange is call change
// minus put change.
func AggregateOIData(rows []domain.OptionChainRow) OISummary {
	var s OISummary
	for _, r := range rows {
		if r.CE != nil {
			s.TotalCallOI += r.CE.OpenInterest
			s.TotalCallOIChange += r.CE.ChangeInOpenInterest
			s.TotalCallVolume += r.CE.Volume
		}
		if r.PE != nil {
			s.TotalPutOI += r.PE.OpenInterest
			s.TotalPutOIChange += r.PE.ChangeInOpenInterest
			s.TotalPutVolume += r.PE.Volume
		}
	}
	if s.TotalCallOI > 0 {
		s.PCR = s.TotalPutOI / s.TotalCallOI
	}
	s.NetOIChange = s.TotalCallOIChange - s.TotalPutOIChange
	return s
}
