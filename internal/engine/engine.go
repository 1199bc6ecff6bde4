// Package engine coordinates the upstream sources, the metrics functions and
// storage. The HTTP gateway and the scheduler both drive it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tradedesk/internal/domain"
	"tradedesk/internal/metrics"
	"tradedesk/internal/source"
	"tradedesk/internal/store"
)

// Topic names used with Publisher.
const (
	TopicSnapshot = "oi-snapshot"
)

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(topic string, v any)
}

// Engine orchestrates reads from the sources, metric computation and
// persistence. Snapshots, candles and pub may be nil.
type Engine struct {
	upstream  *source.Upstream
	bars      source.BarSource
	snapshots store.SnapshotStore
	candles   store.CandleStore
	pub       Publisher
	log       *slog.Logger

	now func() time.Time
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(
	upstream *source.Upstream,
	bars source.BarSource,
	snapshots store.SnapshotStore,
	candles store.CandleStore,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if bars == nil {
		bars = upstream
	}
	return &Engine{
		upstream:  upstream,
		bars:      bars,
		snapshots: snapshots,
		candles:   candles,
		log:       log.With("component", "engine"),
		now:       time.Now,
	}
}

// SetPublisher installs p as the event sink.
func (e *Engine) SetPublisher(p Publisher) { e.pub = p }

// Upstream returns the upstream source.
func (e *Engine) Upstream() *source.Upstream { return e.upstream }

// BarSourceName returns the name of the configured bar source.
func (e *Engine) BarSourceName() string { return e.bars.Name() }

// ChainAnalysis is the processed view of one option chain.
type ChainAnalysis struct {
	Symbol    string                 `json:"symbol"`
	Spot      float64                `json:"spot"`
	Timestamp time.Time              `json:"timestamp"`
	Rows      []metrics.ProcessedRow `json:"rows"`
	Summary   metrics.OISummary      `json:"summary"`
	MaxPain   *metrics.MaxPain       `json:"maxPain"`
	Gamma     metrics.GammaExposure  `json:"gammaExposure"`
}

// Snapshot condenses the analysis into a storable record.
func (a *ChainAnalysis) Snapshot() store.OISnapshot {
	snap := store.OISnapshot{
		Symbol:       a.Symbol,
		Time:         a.Timestamp,
		Spot:         a.Spot,
		TotalCallOI:  a.Summary.TotalCallOI,
		TotalPutOI:   a.Summary.TotalPutOI,
		CallOIChange: a.Summary.TotalCallOIChange,
		PutOIChange:  a.Summary.TotalPutOIChange,
		PCR:          a.Summary.PCR,
		GammaTotal:   a.Gamma.Total,
	}
	if a.MaxPain != nil {
		snap.MaxPain = a.MaxPain.Strike
	}
	return snap
}

// AnalyzeChain fetches the option chain and the underlying quote
// concurrently and derives the chain metrics. The quote only supplies the
// spot price; if it fails, the spot embedded in the chain payload is used
// and the call fails only when neither is available.
func (e *Engine) AnalyzeChain(ctx context.Context, symbol string) (*ChainAnalysis, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}

	var (
		chain    source.Chain
		quote    domain.Stock
		quoteErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chain, err = e.upstream.OptionChain(gctx, symbol)
		return err
	})
	g.Go(func() error {
		quote, quoteErr = e.upstream.Quote(gctx, symbol)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("option chain %s: %w", symbol, err)
	}

	spot := quote.LastPrice
	if spot == 0 {
		spot = chain.Spot
	}
	if quoteErr != nil {
		if spot == 0 {
			return nil, fmt.Errorf("quote %s: %w", symbol, quoteErr)
		}
		e.log.Warn("quote failed, using chain spot", "symbol", symbol, "spot", spot, "error", quoteErr)
	}

	a := &ChainAnalysis{
		Symbol:    symbol,
		Spot:      spot,
		Timestamp: e.now().UTC(),
		Rows:      metrics.ProcessOptionChain(chain.Rows, spot),
		Summary:   metrics.AggregateOIData(chain.Rows),
		Gamma:     metrics.ComputeGammaExposure(chain.Rows, spot),
	}
	mp, err := metrics.CalculateMaxPain(chain.Rows)
	switch {
	case err == nil:
		a.MaxPain = &mp
	case errors.Is(err, metrics.ErrEmptyChain):
	default:
		return nil, err
	}
	return a, nil
}

// RecordSnapshot analyzes the chain for symbol, stores the snapshot and
// publishes it.
func (e *Engine) RecordSnapshot(ctx context.Context, symbol string) (store.OISnapshot, error) {
	a, err := e.AnalyzeChain(ctx, symbol)
	if err != nil {
		return store.OISnapshot{}, err
	}
	snap := a.Snapshot()
	if err := e.saveSnapshot(ctx, snap); err != nil {
		return store.OISnapshot{}, err
	}
	return snap, nil
}

// SaveAnalysis stores and publishes the snapshot of an analysis already
// computed by the caller.
func (e *Engine) SaveAnalysis(ctx context.Context, a *ChainAnalysis) error {
	return e.saveSnapshot(ctx, a.Snapshot())
}

func (e *Engine) saveSnapshot(ctx context.Context, snap store.OISnapshot) error {
	if e.snapshots != nil {
		if err := e.snapshots.RecordOISnapshot(ctx, snap); err != nil {
			return err
		}
	}
	if e.pub != nil {
		e.pub.Publish(TopicSnapshot, snap)
	}
	e.log.Debug("oi snapshot", "symbol", snap.Symbol, "pcr", snap.PCR, "maxPain", snap.MaxPain)
	return nil
}

// ErrNoSnapshotStore is returned when history is requested without storage.
var ErrNoSnapshotStore = errors.New("snapshot storage is not configured")

// OIHistory lists stored snapshots for symbol, newest first.
func (e *Engine) OIHistory(ctx context.Context, symbol string, limit int) ([]store.OISnapshot, error) {
	if e.snapshots == nil {
		return nil, ErrNoSnapshotStore
	}
	return e.snapshots.ListOISnapshots(ctx, symbol, limit)
}
