package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ SnapshotStore = (*SQLiteStore)(nil)

// SQLiteStore implements SnapshotStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serialises writers
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, switches
// it to WAL mode and creates the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS oi_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT    NOT NULL,
			timestamp      INTEGER NOT NULL,
			spot           REAL,
			total_call_oi  REAL,
			total_put_oi   REAL,
			call_oi_change REAL,
			put_oi_change  REAL,
			pcr            REAL,
			max_pain       REAL,
			gamma_total    REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_oi_symbol_ts ON oi_snapshots(symbol, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordOISnapshot inserts a snapshot. A zero Time is stamped with now.
func (s *SQLiteStore) RecordOISnapshot(ctx context.Context, snap OISnapshot) error {
	if snap.Symbol == "" {
		return fmt.Errorf("snapshot symbol is required")
	}
	if snap.Time.IsZero() {
		snap.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO oi_snapshots
		(symbol, timestamp, spot, total_call_oi, total_put_oi,
		 call_oi_change, put_oi_change, pcr, max_pain, gamma_total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(snap.Symbol), snap.Time.UnixMilli(), snap.Spot,
		snap.TotalCallOI, snap.TotalPutOI, snap.CallOIChange, snap.PutOIChange,
		snap.PCR, snap.MaxPain, snap.GammaTotal)
	if err != nil {
		return fmt.Errorf("insert oi snapshot: %w", err)
	}
	return nil
}

// ListOISnapshots returns the newest snapshots for symbol first.
func (s *SQLiteStore) ListOISnapshots(ctx context.Context, symbol string, limit int) ([]OISnapshot, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, timestamp, spot, total_call_oi, total_put_oi,
		call_oi_change, put_oi_change, pcr, max_pain, gamma_total
		FROM oi_snapshots WHERE symbol = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?`,
		strings.ToUpper(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("query oi snapshots: %w", err)
	}
	defer rows.Close()

	var out []OISnapshot
	for rows.Next() {
		var snap OISnapshot
		var ts int64
		if err := rows.Scan(&snap.Symbol, &ts, &snap.Spot, &snap.TotalCallOI, &snap.TotalPutOI,
			&snap.CallOIChange, &snap.PutOIChange, &snap.PCR, &snap.MaxPain, &snap.GammaTotal); err != nil {
			return nil, fmt.Errorf("scan oi snapshot: %w", err)
		}
		snap.Time = time.UnixMilli(ts).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}
