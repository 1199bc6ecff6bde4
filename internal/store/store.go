// Package store defines storage interfaces for the data the gateway keeps
// between requests: open-interest snapshots and archived daily candles.
package store

import (
	"context"
	"time"

	"tradedesk/internal/domain"
)

// OISnapshot is a point-in-time summary of an option chain.
type OISnapshot struct {
	Symbol       string    `json:"symbol"`
	Time         time.Time `json:"time"`
	Spot         float64   `json:"spot"`
	TotalCallOI  float64   `json:"totalCallOI"`
	TotalPutOI   float64   `json:"totalPutOI"`
	CallOIChange float64   `json:"callOIChange"`
	PutOIChange  float64   `json:"putOIChange"`
	PCR          float64   `json:"pcr"`
	MaxPain      float64   `json:"maxPain"`
	GammaTotal   float64   `json:"gammaTotal"`
}

// SnapshotStore persists and retrieves OI snapshots.
type SnapshotStore interface {
	// RecordOISnapshot appends a snapshot.
	RecordOISnapshot(ctx context.Context, snap OISnapshot) error

	// ListOISnapshots returns the most recent snapshots for symbol, newest
	// first, up to limit. A limit <= 0 returns all of them.
	ListOISnapshots(ctx context.Context, symbol string, limit int) ([]OISnapshot, error)

	Close() error
}

// CandleStore persists and retrieves daily candles per symbol.
type CandleStore interface {
	// WriteCandles merges candles into the archive for symbol. A candle at
	// an existing timestamp replaces the stored one.
	WriteCandles(ctx context.Context, symbol string, candles []domain.Candle) error

	// ReadCandles returns candles for symbol within [start, end], oldest
	// first.
	ReadCandles(ctx context.Context, symbol string, start, end time.Time) ([]domain.Candle, error)

	// ListSymbols returns all symbols with archived candles.
	ListSymbols(ctx context.Context) ([]string, error)
}
