package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tradedesk/internal/domain"
	"tradedesk/internal/metrics"
	"tradedesk/internal/source"
)

// DefaultTechnicalsDays is the lookback used when none is given. It covers
// the 200-bar SMA with room for holidays.
const DefaultTechnicalsDays = 320

// TechnicalsReport holds indicators for a symbol's daily bars together with
// the floor pivots of the latest bar.
type TechnicalsReport struct {
	Symbol     string             `json:"symbol"`
	Source     string             `json:"source"`
	Bars       int                `json:"bars"`
	Last       *domain.Candle     `json:"last"`
	Technicals metrics.Technicals `json:"technicals"`
	Pivots     *metrics.Pivots    `json:"pivots"`
}

// Technicals loads days of daily bars for symbol and computes indicators.
func (e *Engine) Technicals(ctx context.Context, symbol string, days int) (*TechnicalsReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if days <= 0 {
		days = DefaultTechnicalsDays
	}
	r := source.LastDays(e.now(), days)
	candles, err := e.bars.DailyBars(ctx, symbol, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("bars %s: %w", symbol, err)
	}
	return TechnicalsFromCandles(symbol, e.bars.Name(), candles)
}

// TechnicalsFromCandles computes a report from bars already in hand.
func TechnicalsFromCandles(symbol, src string, candles []domain.Candle) (*TechnicalsReport, error) {
	tech, err := metrics.CalculateTechnicals(domain.SeriesFromCandles(candles))
	if err != nil {
		return nil, err
	}
	rep := &TechnicalsReport{
		Symbol:     symbol,
		Source:     src,
		Bars:       len(candles),
		Technicals: tech,
	}
	if n := len(candles); n > 0 {
		last := candles[n-1]
		rep.Last = &last
		if p, err := metrics.CalculatePivotPoints(last.High, last.Low, last.Close); err == nil {
			rep.Pivots = &p
		}
	}
	return rep, nil
}

// Stocks returns the upstream universe filtered by spec and, when sortBy is
// set, sorted.
func (e *Engine) Stocks(ctx context.Context, spec metrics.FilterSpec, sortBy, order string) ([]domain.Stock, error) {
	stocks, err := e.upstream.Stocks(ctx)
	if err != nil {
		return nil, err
	}
	stocks = metrics.FilterStocks(stocks, spec)
	if sortBy == "" {
		return stocks, nil
	}
	return metrics.SortStocks(stocks, sortBy, order)
}

// Scan scores the upstream universe against criteria.
func (e *Engine) Scan(ctx context.Context, criteria metrics.ScanCriteria) ([]metrics.ScanResult, error) {
	stocks, err := e.upstream.Stocks(ctx)
	if err != nil {
		return nil, err
	}
	return metrics.ScanStocks(stocks, criteria), nil
}

// ErrNoCandleStore is returned when archiving without a candle store.
var ErrNoCandleStore = errors.New("candle storage is not configured")

// archiveConcurrency bounds parallel bar fetches during an archive run.
const archiveConcurrency = 4

// ArchiveBars fetches the last days of bars for each symbol and merges them
// into the candle store. A failing symbol is logged and skipped; the count
// of candles written is returned along with the first failure.
func (e *Engine) ArchiveBars(ctx context.Context, symbols []string, days int) (int, error) {
	if e.candles == nil {
		return 0, ErrNoCandleStore
	}
	r := source.LastDays(e.now(), days)

	var (
		written  atomic.Int64
		firstErr error
		errOnce  atomic.Bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(archiveConcurrency)
	for _, sym := range symbols {
		sym := strings.ToUpper(sym)
		g.Go(func() error {
			candles, err := e.bars.DailyBars(gctx, sym, r.Start, r.End)
			if err == nil {
				err = e.candles.WriteCandles(gctx, sym, candles)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.log.Warn("archive failed", "symbol", sym, "error", err)
				if errOnce.CompareAndSwap(false, true) {
					firstErr = fmt.Errorf("archive %s: %w", sym, err)
				}
				return nil
			}
			written.Add(int64(len(candles)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(written.Load()), err
	}
	e.log.Info("archive complete", "symbols", len(symbols), "candles", written.Load(), "source", e.bars.Name())
	return int(written.Load()), firstErr
}
