package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tradedesk/internal/config"
)

func TestRunClosesStoreOnSetupError(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tradedesk.db")

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Fetch.BaseURL = "http://127.0.0.1:1"
	cfg.Storage.DataDir = dir
	cfg.Storage.SQLitePath = dbPath
	cfg.Schedule.SnapshotCron = "every five minutes"

	err := run(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil || !strings.Contains(err.Error(), "creating scheduler") {
		t.Fatalf("run = %v, want scheduler error", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database not created: %v", err)
	}
	// The WAL file is removed when the last connection closes.
	if _, err := os.Stat(dbPath + "-wal"); !os.IsNotExist(err) {
		t.Errorf("sqlite store left open: %s-wal exists (%v)", dbPath, err)
	}
}
