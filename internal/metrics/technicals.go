package metrics

import (
	"fmt"
	"math"

	"tradedesk/internal/domain"
)

// Indicator windows.
const (
	RSIPeriod       = 14
	ATRPeriod       = 14
	BollingerPeriod = 20
	BollingerWidth  = 2.0
	MACDFast        = 12
	MACDSlow        = 26
)

// MACD is the MACD line. Signal and Histogram are always nil: the signal
// line needs a history of MACD values that is not retained.
type MACD struct {
	Line      float64  `json:"macd"`
	Signal    *float64 `json:"signal"`
	Histogram *float64 `json:"histogram"`
}

// Bands is a Bollinger band triple.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Technicals bundles the indicators for one series. A nil field means the
// series was shorter than the indicator's window, or lacked the inputs
// it needs (highs/lows for ATR, volumes for VWAP).
type Technicals struct {
	SMA20          *float64 `json:"sma20"`
	SMA50          *float64 `json:"sma50"`
	SMA200         *float64 `json:"sma200"`
	EMA9           *float64 `json:"ema9"`
	EMA21          *float64 `json:"ema21"`
	RSI            *float64 `json:"rsi"`
	MACD           *MACD    `json:"macd"`
	ATR            *float64 `json:"atr"`
	VWAP           *float64 `json:"vwap"`
	BollingerBands *Bands   `json:"bollingerBands"`
}

// CalculateTechnicals computes every indicator over s. Highs, lows and
// volumes are optional, but when present must be as long as closes.
func CalculateTechnicals(s domain.TechnicalSeries) (Technicals, error) {
	n := len(s.Closes)
	for _, in := range []struct {
		name string
		xs   []float64
	}{{"highs", s.Highs}, {"lows", s.Lows}, {"volumes", s.Volumes}} {
		if len(in.xs) > 0 && len(in.xs) != n {
			return Technicals{}, fmt.Errorf("%s has %d points, closes has %d", in.name, len(in.xs), n)
		}
	}

	var t Technicals
	t.SMA20 = optional(SMA(s.Closes, 20))
	t.SMA50 = optional(SMA(s.Closes, 50))
	t.SMA200 = optional(SMA(s.Closes, 200))
	t.EMA9 = optional(EMA(s.Closes, 9))
	t.EMA21 = optional(EMA(s.Closes, 21))
	t.RSI = optional(RSI(s.Closes, RSIPeriod))
	if line, err := MACDLine(s.Closes); err == nil {
		t.MACD = &MACD{Line: line}
	}
	if len(s.Highs) > 0 && len(s.Lows) > 0 {
		t.ATR = optional(ATR(s.Highs, s.Lows, s.Closes, ATRPeriod))
	}
	if len(s.Volumes) > 0 {
		t.VWAP = optional(VWAP(s.Highs, s.Lows, s.Closes, s.Volumes))
	}
	if b, err := Bollinger(s.Closes, BollingerPeriod, BollingerWidth); err == nil {
		t.BollingerBands = &b
	}
	return t, nil
}

func optional(v float64, err error) *float64 {
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// SMA is the mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("sma(%d) over %d points: %w", period, len(values), ErrInsufficientData)
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// EMA is the exponential moving average with smoothing 2/(period+1),
// seeded with the SMA of the first period values.
func EMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("ema(%d) over %d points: %w", period, len(values), ErrInsufficientData)
	}
	k := 2.0 / float64(period+1)
	ema, _ := SMA(values[:period], period)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema, nil
}

// RSI uses the simple average gain and loss over the last period deltas,
// so it needs period+1 values. A zero average loss yields 100.
func RSI(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period+1 {
		return 0, fmt.Errorf("rsi(%d) over %d points: %w", period, len(values), ErrInsufficientData)
	}
	var gain, loss float64
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// MACDLine is EMA(12) - EMA(26).
func MACDLine(values []float64) (float64, error) {
	slow, err := EMA(values, MACDSlow)
	if err != nil {
		return 0, err
	}
	fast, err := EMA(values, MACDFast)
	if err != nil {
		return 0, err
	}
	return fast - slow, nil
}

// ATR is the simple average of the last period true ranges. It needs
// period+1 bars because each true range looks at the previous close.
func ATR(highs, lows, closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return 0, fmt.Errorf("atr: highs/lows/closes length mismatch")
	}
	if n < period+1 {
		return 0, fmt.Errorf("atr(%d) over %d points: %w", period, n, ErrInsufficientData)
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		prev := closes[i-1]
		tr := math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-prev), math.Abs(lows[i]-prev)))
		sum += tr
	}
	return sum / float64(period), nil
}

// VWAP is cumulative typical price times volume over cumulative volume for
// the whole series. Without highs and lows the close stands in for the
// typical price.
func VWAP(highs, lows, closes, volumes []float64) (float64, error) {
	n := len(closes)
	if n == 0 || len(volumes) != n {
		return 0, fmt.Errorf("vwap over %d points: %w", n, ErrInsufficientData)
	}
	hasRange := len(highs) == n && len(lows) == n
	var pv, vol float64
	for i := 0; i < n; i++ {
		tp := closes[i]
		if hasRange {
			tp = (highs[i] + lows[i] + closes[i]) / 3
		}
		pv += tp * volumes[i]
		vol += volumes[i]
	}
	if vol == 0 {
		return 0, fmt.Errorf("vwap: zero total volume: %w", ErrInsufficientData)
	}
	return pv / vol, nil
}

// Bollinger returns SMA(period) +/- width population standard deviations
// of the last period values.
func Bollinger(values []float64, period int, width float64) (Bands, error) {
	mid, err := SMA(values, period)
	if err != nil {
		return Bands{}, err
	}
	variance := 0.0
	for _, v := range values[len(values)-period:] {
		variance += (v - mid) * (v - mid)
	}
	sd := math.Sqrt(variance / float64(period))
	return Bands{Upper: mid + width*sd, Middle: mid, Lower: mid - width*sd}, nil
}
