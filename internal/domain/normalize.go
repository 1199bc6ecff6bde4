package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// rawObject is an undecoded JSON object, used to look up field-name variants.
type rawObject map[string]json.RawMessage

// pick returns the first present, non-null value among keys.
func (o rawObject) pick(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		v, ok := o[k]
		if !ok {
			continue
		}
		if s := strings.TrimSpace(string(v)); s == "" || s == "null" {
			continue
		}
		return v, true
	}
	return nil, false
}

func (o rawObject) number(keys ...string) float64 {
	v, ok := o.pick(keys...)
	if !ok {
		return 0
	}
	return ParseNumber(v)
}

func (o rawObject) text(keys ...string) string {
	v, ok := o.pick(keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		// Numbers used as identifiers (e.g. security IDs) are kept verbatim.
		return strings.TrimSpace(string(v))
	}
	return strings.TrimSpace(s)
}

func (o rawObject) flag(keys ...string) bool {
	v, ok := o.pick(keys...)
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	switch strings.ToLower(strings.Trim(strings.TrimSpace(string(v)), `"`)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

func (o rawObject) object(keys ...string) (rawObject, bool) {
	v, ok := o.pick(keys...)
	if !ok {
		return nil, false
	}
	var obj rawObject
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// ParseNumber converts a JSON number or numeric string ("1,234.50", "2.5%")
// to a float64. Anything that does not parse yields 0.
func ParseNumber(raw json.RawMessage) float64 {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0
		}
		s = strings.TrimSpace(str)
	}
	return ParseNumberString(s)
}

// ParseNumberString parses a loosely formatted numeric string. Thousands
// separators and a trailing percent sign are ignored; invalid input yields 0.
func ParseNumberString(s string) float64 {
	s = strings.TrimSuffix(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), "%")
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// UnmarshalJSON accepts the field-name variants used by the different quote
// endpoints and maps them onto the canonical Stock record.
func (s *Stock) UnmarshalJSON(data []byte) error {
	var o rawObject
	if err := json.Unmarshal(data, &o); err != nil {
		return err
	}
	*s = Stock{
		Symbol:        o.text("symbol", "tradingSymbol", "trading_symbol", "ticker"),
		Name:          o.text("name", "companyName", "company_name"),
		Sector:        o.text("sector", "industry"),
		LastPrice:     o.number("lastPrice", "ltp", "last", "last_price", "price"),
		Change:        o.number("change", "netChange", "net_change"),
		ChangePercent: o.number("changePercent", "pChange", "percentChange", "change_percent"),
		Open:          o.number("open", "openPrice"),
		High:          o.number("high", "dayHigh", "day_high"),
		Low:           o.number("low", "dayLow", "day_low"),
		PrevClose:     o.number("prevClose", "previousClose", "prev_close"),
		Volume:        o.number("volume", "totalTradedVolume", "vol"),
		AvgVolume:     o.number("avgVolume", "averageVolume", "avg_volume"),
		IsFNO:         o.flag("isFNO", "isFno", "fno", "fnoStock"),
	}
	if v, ok := o.pick("indices"); ok {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			s.Indices = list
		}
	}
	if ix := o.text("index"); ix != "" && !s.InIndex(ix) {
		s.Indices = append(s.Indices, ix)
	}
	return nil
}

// UnmarshalJSON accepts flat legs (NSE style) as well as legs that nest
// their quote under market_data and their greeks under greeks or
// option_greeks.
func (l *OptionLeg) UnmarshalJSON(data []byte) error {
	var o rawObject
	if err := json.Unmarshal(data, &o); err != nil {
		return err
	}
	md := o
	if nested, ok := o.object("market_data", "marketData"); ok {
		md = nested
	}
	greeks := o
	if nested, ok := o.object("greeks", "option_greeks", "optionGreeks"); ok {
		greeks = nested
	}

	*l = OptionLeg{
		OpenInterest:         md.number("openInterest", "oi", "open_interest"),
		ChangeInOpenInterest: md.number("changeInOpenInterest", "changeinOpenInterest", "oiChange", "change_in_oi"),
		Volume:               md.number("volume", "totalTradedVolume"),
		ImpliedVolatility:    firstNonZero(md.number("impliedVolatility", "iv"), greeks.number("iv")),
		LastPrice:            md.number("lastPrice", "ltp", "last_price"),
		Change:               md.number("change", "netChange"),
		Gamma:                greeks.number("gamma"),
		Delta:                greeks.number("delta"),
	}
	if l.ChangeInOpenInterest == 0 {
		if _, ok := md.pick("prev_oi", "prevOi"); ok {
			l.ChangeInOpenInterest = l.OpenInterest - md.number("prev_oi", "prevOi")
		}
	}
	return nil
}

// UnmarshalJSON accepts CE/PE, call_options/put_options and call/put leg
// names and the strike under strikePrice, strike_price or strike.
func (r *OptionChainRow) UnmarshalJSON(data []byte) error {
	var o rawObject
	if err := json.Unmarshal(data, &o); err != nil {
		return err
	}
	*r = OptionChainRow{StrikePrice: o.number("strikePrice", "strike_price", "strike")}
	if v, ok := o.pick("CE", "ce", "call_options", "callOptions", "call"); ok {
		leg := &OptionLeg{}
		if err := json.Unmarshal(v, leg); err != nil {
			return err
		}
		r.CE = leg
	}
	if v, ok := o.pick("PE", "pe", "put_options", "putOptions", "put"); ok {
		leg := &OptionLeg{}
		if err := json.Unmarshal(v, leg); err != nil {
			return err
		}
		r.PE = leg
	}
	return nil
}

// UnmarshalJSON accepts RFC 3339 strings, dates, or Unix seconds/millis
// for the bar time, and short o/h/l/c/v keys.
func (c *Candle) UnmarshalJSON(data []byte) error {
	var o rawObject
	if err := json.Unmarshal(data, &o); err != nil {
		return err
	}
	*c = Candle{
		Open:   o.number("open", "o"),
		High:   o.number("high", "h"),
		Low:    o.number("low", "l"),
		Close:  o.number("close", "c"),
		Volume: o.number("volume", "v"),
	}
	if v, ok := o.pick("time", "timestamp", "t", "date"); ok {
		c.Time = parseTime(v)
	}
	return nil
}

func parseTime(raw json.RawMessage) time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixAuto(n)
		}
		return time.Time{}
	}
	n := int64(ParseNumber(raw))
	if n == 0 {
		return time.Time{}
	}
	return unixAuto(n)
}

// unixAuto treats values beyond 1e12 as milliseconds.
func unixAuto(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func firstNonZero(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
