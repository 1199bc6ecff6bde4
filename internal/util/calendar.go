package util

import (
	"time"
)

// TradingCalendar provides market-hours awareness for the NSE cash and F&O
// session (09:15-15:30 Asia/Kolkata, Monday to Friday). Exchange holidays
// are supplied by the caller.
type TradingCalendar struct {
	loc      *time.Location
	open     time.Duration // offset from midnight
	close    time.Duration
	holidays map[string]bool // YYYY-MM-DD in loc
}

// NewTradingCalendar creates a TradingCalendar for the NSE session. Dates in
// holidays use the YYYY-MM-DD layout.
func NewTradingCalendar(holidays ...string) *TradingCalendar {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	h := make(map[string]bool, len(holidays))
	for _, d := range holidays {
		h[d] = true
	}
	return &TradingCalendar{
		loc:      loc,
		open:     9*time.Hour + 15*time.Minute,
		close:    15*time.Hour + 30*time.Minute,
		holidays: h,
	}
}

// IsTradingDay reports whether the date of t (in exchange time) is a
// weekday that is not a holiday.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	lt := t.In(tc.loc)
	if lt.Weekday() == time.Saturday || lt.Weekday() == time.Sunday {
		return false
	}
	return !tc.holidays[lt.Format("2006-01-02")]
}

// IsMarketOpen returns whether the market is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	if !tc.IsTradingDay(t) {
		return false
	}
	lt := t.In(tc.loc)
	since := lt.Sub(tc.midnight(lt))
	return since >= tc.open && since < tc.close
}

// NextOpen returns the next market open time at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	lt := t.In(tc.loc)
	for i := 0; i < 15; i++ {
		day := tc.midnight(lt).AddDate(0, 0, i)
		open := day.Add(tc.open)
		if tc.IsTradingDay(day) && !open.Before(lt) {
			return open
		}
	}
	return time.Time{}
}

// NextClose returns the next market close time at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	lt := t.In(tc.loc)
	for i := 0; i < 15; i++ {
		day := tc.midnight(lt).AddDate(0, 0, i)
		cl := day.Add(tc.close)
		if tc.IsTradingDay(day) && !cl.Before(lt) {
			return cl
		}
	}
	return time.Time{}
}

func (tc *TradingCalendar) midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, tc.loc)
}

// Location returns the exchange time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }
