package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradedesk/internal/domain"
)

// Compile-time interface check.
var _ BarSource = (*AlpacaBars)(nil)

// AlpacaBars reads daily bars from the Alpaca market-data API.
type AlpacaBars struct {
	client *marketdata.Client
	feed   marketdata.Feed
	log    *slog.Logger
}

// NewAlpacaBars creates a bar source with the given Alpaca credentials. An
// empty dataURL selects the SDK default.
func NewAlpacaBars(apiKey, apiSecret, dataURL string, log *slog.Logger) *AlpacaBars {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &AlpacaBars{
		client: marketdata.NewClient(opts),
		feed:   marketdata.IEX,
		log:    log.With("source", "alpaca"),
	}
}

// Name returns "alpaca".
func (a *AlpacaBars) Name() string { return "alpaca" }

// DailyBars fetches daily bars for a single symbol.
func (a *AlpacaBars) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Candle, error) {
	bars, err := a.DailyBarsMulti(ctx, []string{symbol}, start, end)
	if err != nil {
		return nil, err
	}
	return bars[strings.ToUpper(symbol)], nil
}

// DailyBarsMulti fetches daily bars for several symbols in one call. Keys
// of the result are upper-case symbols.
func (a *AlpacaBars) DailyBarsMulti(ctx context.Context, symbols []string, start, end time.Time) (map[string][]domain.Candle, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	multiBars, err := a.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      a.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	out := make(map[string][]domain.Candle, len(multiBars))
	for symbol, alpacaBars := range multiBars {
		candles := make([]domain.Candle, 0, len(alpacaBars))
		for _, ab := range alpacaBars {
			candles = append(candles, domain.Candle{
				Time:   ab.Timestamp.UTC(),
				Open:   ab.Open,
				High:   ab.High,
				Low:    ab.Low,
				Close:  ab.Close,
				Volume: float64(ab.Volume),
			})
		}
		sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
		out[strings.ToUpper(symbol)] = candles
	}
	a.log.Debug("fetched bars", "symbols", len(symbols), "returned", len(out))
	return out, nil
}
