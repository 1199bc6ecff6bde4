package metrics

import "fmt"

// Pivots are classic floor-trader pivot levels.
type Pivots struct {
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	R3    float64 `json:"r3"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	S3    float64 `json:"s3"`
}

// CalculatePivotPoints derives pivot levels from the previous session's
// high, low and close.
func CalculatePivotPoints(high, low, close float64) (Pivots, error) {
	if high < low {
		return Pivots{}, fmt.Errorf("high %.2f below low %.2f", high, low)
	}
	p := (high + low + close) / 3
	rng := high - low
	return Pivots{
		Pivot: p,
		R1:    2*p - low,
		S1:    2*p - high,
		R2:    p + rng,
		S2:    p - rng,
		R3:    high + 2*(p-low),
		S3:    low - 2*(high-p),
	}, nil
}
