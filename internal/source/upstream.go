package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"tradedesk/internal/domain"
	"tradedesk/internal/fetch"
)

// Upstream endpoint paths, relative to the fetch client's base URL.
const (
	StocksPath      = "/stocks"
	OptionChainPath = "/option-chain/"
	QuotePath       = "/quote/"
	HistoricalPath  = "/historical/"
)

// Compile-time interface check.
var _ BarSource = (*Upstream)(nil)

// Chain is an option chain together with the underlying's spot price. Spot
// is 0 when the upstream payload does not carry it.
type Chain struct {
	Symbol string                  `json:"symbol"`
	Spot   float64                 `json:"spot"`
	Rows   []domain.OptionChainRow `json:"rows"`
}

// Upstream reads quotes, option chains and bars from the REST backend. Every
// read goes through the shared cache, so concurrent identical requests hit
// the backend once per TTL window.
type Upstream struct {
	client *fetch.Client
	cache  *fetch.Cache
	opts   []fetch.RequestOption
	log    *slog.Logger
}

// NewUpstream creates an Upstream. opts are applied to every request and
// usually carry the auth headers.
func NewUpstream(client *fetch.Client, cache *fetch.Cache, log *slog.Logger, opts ...fetch.RequestOption) *Upstream {
	if log == nil {
		log = slog.Default()
	}
	return &Upstream{
		client: client,
		cache:  cache,
		opts:   opts,
		log:    log.With("source", "upstream"),
	}
}

// Name returns "upstream".
func (u *Upstream) Name() string { return "upstream" }

// Cache returns the cache backing this source.
func (u *Upstream) Cache() *fetch.Cache { return u.cache }

// Raw performs a cached GET and returns the body unchanged. maxAge <= 0
// selects the cache TTL. Every read of this source goes through Raw, so a
// cache key always holds the upstream bytes and the typed readers decode
// after the cache.
func (u *Upstream) Raw(ctx context.Context, path string, query url.Values, maxAge time.Duration) (json.RawMessage, error) {
	key := fetch.Key(path, query)
	return fetch.FetchAs(ctx, u.cache, key, maxAge, func(ctx context.Context) (json.RawMessage, error) {
		data, err := u.client.Get(ctx, path, query, u.opts...)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	})
}

// Stocks returns the stock universe.
func (u *Upstream) Stocks(ctx context.Context) ([]domain.Stock, error) {
	data, err := u.Raw(ctx, StocksPath, nil, 0)
	if err != nil {
		return nil, err
	}
	var stocks []domain.Stock
	if err := json.Unmarshal(unwrap(data, "data", "stocks", "items"), &stocks); err != nil {
		return nil, fmt.Errorf("decode stocks: %w", err)
	}
	return stocks, nil
}

// Quote returns the latest quote for symbol.
func (u *Upstream) Quote(ctx context.Context, symbol string) (domain.Stock, error) {
	data, err := u.Raw(ctx, QuotePath+url.PathEscape(strings.ToUpper(symbol)), nil, 0)
	if err != nil {
		return domain.Stock{}, err
	}
	var s domain.Stock
	if err := json.Unmarshal(unwrap(data, "data", "quote"), &s); err != nil {
		return domain.Stock{}, fmt.Errorf("decode quote: %w", err)
	}
	if s.Symbol == "" {
		s.Symbol = strings.ToUpper(symbol)
	}
	return s, nil
}

// OptionChain returns the option chain for symbol. Rows are sorted by
// strike.
func (u *Upstream) OptionChain(ctx context.Context, symbol string) (Chain, error) {
	symbol = strings.ToUpper(symbol)
	data, err := u.Raw(ctx, OptionChainPath+url.PathEscape(symbol), nil, 0)
	if err != nil {
		return Chain{}, err
	}
	chain, err := decodeChain(data)
	if err != nil {
		return Chain{}, fmt.Errorf("decode option chain: %w", err)
	}
	chain.Symbol = symbol
	sort.SliceStable(chain.Rows, func(i, j int) bool {
		return chain.Rows[i].StrikePrice < chain.Rows[j].StrikePrice
	})
	u.log.Debug("option chain", "symbol", symbol, "strikes", len(chain.Rows), "spot", chain.Spot)
	return chain, nil
}

// DailyBars returns daily candles for symbol from the historical endpoint.
func (u *Upstream) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Candle, error) {
	query := url.Values{
		"interval": {"1d"},
		"from":     {start.UTC().Format("2006-01-02")},
		"to":       {end.UTC().Format("2006-01-02")},
	}
	data, err := u.Raw(ctx, HistoricalPath+url.PathEscape(strings.ToUpper(symbol)), query, 0)
	if err != nil {
		return nil, err
	}
	var candles []domain.Candle
	if err := json.Unmarshal(unwrap(data, "data", "candles", "bars"), &candles); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

// unwrap returns the value under the first present key when data is a JSON
// object, and data itself otherwise.
func unwrap(data []byte, keys ...string) []byte {
	body := bytes.TrimSpace(data)
	if len(body) == 0 || body[0] != '{' {
		return body
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return body
}

var spotKeys = []string{"underlyingValue", "spot", "spotPrice", "last_price", "underlying_price"}

// decodeChain accepts a bare array of rows, an object carrying the rows
// under data/chain/optionChain/oc (optionally nested in records or data),
// or a map keyed by strike.
func decodeChain(data []byte) (Chain, error) {
	body := bytes.TrimSpace(data)
	var c Chain
	if len(body) > 0 && body[0] == '[' {
		err := json.Unmarshal(body, &c.Rows)
		return c, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return c, err
	}
	for _, k := range spotKeys {
		if v, ok := obj[k]; ok {
			c.Spot = domain.ParseNumber(v)
			break
		}
	}

	for _, k := range []string{"records", "data", "chain", "optionChain", "oc"} {
		v, ok := obj[k]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) > 0 && v[0] == '[' {
			if err := json.Unmarshal(v, &c.Rows); err != nil {
				return c, err
			}
			return c, nil
		}
		if k == "oc" {
			rows, err := decodeStrikeMap(v)
			c.Rows = rows
			return c, err
		}
		inner, err := decodeChain(v)
		if err != nil {
			return c, err
		}
		if inner.Spot == 0 {
			inner.Spot = c.Spot
		}
		return inner, nil
	}
	return c, nil
}

// decodeStrikeMap decodes {"22000.000000": {"ce": {...}, "pe": {...}}}.
func decodeStrikeMap(data []byte) ([]domain.OptionChainRow, error) {
	var m map[string]domain.OptionChainRow
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	rows := make([]domain.OptionChainRow, 0, len(m))
	for strike, row := range m {
		if row.StrikePrice == 0 {
			row.StrikePrice = domain.ParseNumberString(strike)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
