package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"tradedesk/internal/domain"
	"tradedesk/internal/fetch"
)

// CachedBars serves a BarSource through the shared cache. Requests are keyed
// by source, symbol and calendar days, so repeated reads within a TTL
// window reach the source once.
type CachedBars struct {
	src   BarSource
	cache *fetch.Cache
}

// Compile-time interface check.
var _ BarSource = (*CachedBars)(nil)

// NewCachedBars wraps src.
func NewCachedBars(src BarSource, cache *fetch.Cache) *CachedBars {
	return &CachedBars{src: src, cache: cache}
}

// Name returns the wrapped source's name.
func (c *CachedBars) Name() string { return c.src.Name() }

// DailyBars returns cached bars or fetches them from the wrapped source.
func (c *CachedBars) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Candle, error) {
	key := fetch.Key("bars/"+c.src.Name()+"/"+strings.ToUpper(symbol), url.Values{
		"from": {start.UTC().Format("2006-01-02")},
		"to":   {end.UTC().Format("2006-01-02")},
	})
	return fetch.FetchAs(ctx, c.cache, key, 0, func(ctx context.Context) ([]domain.Candle, error) {
		return c.src.DailyBars(ctx, symbol, start, end)
	})
}
