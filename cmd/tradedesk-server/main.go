package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tradedesk/internal/api"
	"tradedesk/internal/config"
	"tradedesk/internal/engine"
	"tradedesk/internal/fetch"
	"tradedesk/internal/httpapi"
	"tradedesk/internal/rpc"
	"tradedesk/internal/scheduler"
	"tradedesk/internal/source"
	"tradedesk/internal/store"
	"tradedesk/internal/util"
	"tradedesk/internal/worker"
)

func main() {
	cfgPath := "config/tradedesk.yaml"
	if p := os.Getenv("TRADEDESK_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("tradedesk-server", "error", err)
		os.Exit(1)
	}
	logger.Info("tradedesk-server stopped")
}

// run wires the components and serves until a signal arrives. Deferred
// cleanup runs on every return path.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Fetch layer.
	cache := fetch.NewCache(cfg.Fetch.CacheTTL, logger)
	client := fetch.NewClient(fetch.ClientOptions{
		BaseURL:         cfg.Fetch.BaseURL,
		Timeout:         cfg.Fetch.Timeout,
		MaxRetries:      cfg.Fetch.MaxRetries,
		RetryBaseDelay:  cfg.Fetch.RetryBaseDelay,
		RateLimitPerMin: cfg.Fetch.RateLimitPerMin,
		Logger:          logger,
	})
	upstream := source.NewUpstream(client, cache, logger,
		fetch.WithBearer(cfg.Auth.BearerToken),
		fetch.DhanHeaders(cfg.Auth.DhanToken, cfg.Auth.DhanClientID, cfg.Auth.UserID),
	)

	var bars source.BarSource = upstream
	if cfg.Alpaca.APIKey != "" {
		bars = source.NewCachedBars(
			source.NewAlpacaBars(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger),
			cache)
	}

	// Storage.
	snapshots, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening sqlite store %s: %w", cfg.Storage.SQLitePath, err)
	}
	defer snapshots.Close()
	candles := store.NewParquetStore(cfg.Storage.DataDir)

	eng := engine.NewEngine(upstream, bars, snapshots, candles, logger)

	// Worker and snapshot hub.
	w := worker.New(cfg.Worker.QueueSize, logger)
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Error("worker", "error", err)
		}
	}()
	hub := httpapi.NewHub(logger)
	go hub.Run(ctx)
	eng.SetPublisher(hub)

	// Scheduler.
	sched, err := scheduler.New(eng, eng, scheduler.Options{
		SnapshotCron: cfg.Schedule.SnapshotCron,
		ArchiveCron:  cfg.Schedule.ArchiveCron,
		Symbols:      cfg.Schedule.Symbols,
		Calendar:     util.NewTradingCalendar(cfg.Schedule.Holidays...),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// Listeners.
	gw := httpapi.NewServer(eng, w, hub, logger)
	grpcServer := rpc.NewServer(w, logger).NewGRPCServer()
	srv := api.NewServer(cfg, gw.Handler(), grpcServer, logger)

	logger.Info("tradedesk-server starting",
		"http", cfg.HTTPAddr(), "grpc", cfg.GRPCAddr(),
		"upstream", cfg.Fetch.BaseURL, "bars", bars.Name())
	return srv.ListenAndServe(ctx)
}
