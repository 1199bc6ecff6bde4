// Package scheduler runs the periodic OI snapshot and bar archive jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"tradedesk/internal/store"
	"tradedesk/internal/util"
)

// DefaultArchiveDays is the lookback of each archive run. Re-fetching a
// week of bars lets a run repair gaps left by missed runs.
const DefaultArchiveDays = 7

// Snapshotter records an OI snapshot for a symbol.
type Snapshotter interface {
	RecordSnapshot(ctx context.Context, symbol string) (store.OISnapshot, error)
}

// Archiver appends recent daily bars for symbols to the archive.
type Archiver interface {
	ArchiveBars(ctx context.Context, symbols []string, days int) (int, error)
}

// Options configures New.
type Options struct {
	SnapshotCron string
	ArchiveCron  string
	Symbols      []string
	ArchiveDays  int
	Calendar     *util.TradingCalendar
	Logger       *slog.Logger
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	snap     Snapshotter
	archive  Archiver
	symbols  []string
	days     int
	calendar *util.TradingCalendar
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// New creates a Scheduler and registers its jobs. Cron expressions carry a
// leading seconds field and are evaluated in exchange time. An empty
// expression disables that job.
func New(snap Snapshotter, archive Archiver, opts Options) (*Scheduler, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")
	cal := opts.Calendar
	if cal == nil {
		cal = util.NewTradingCalendar()
	}
	days := opts.ArchiveDays
	if days <= 0 {
		days = DefaultArchiveDays
	}

	cl := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cal.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		snap:     snap,
		archive:  archive,
		symbols:  opts.Symbols,
		days:     days,
		calendar: cal,
		log:      log,
		now:      time.Now,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if opts.SnapshotCron != "" && snap != nil {
		if _, err := s.cron.AddFunc(opts.SnapshotCron, func() { s.RunSnapshots(s.ctx) }); err != nil {
			return nil, fmt.Errorf("register snapshot job: %w", err)
		}
	}
	if opts.ArchiveCron != "" && archive != nil {
		if _, err := s.cron.AddFunc(opts.ArchiveCron, func() { s.RunArchive(s.ctx) }); err != nil {
			return nil, fmt.Errorf("register archive job: %w", err)
		}
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()), "symbols", len(s.symbols))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Entries returns the next run time of each registered job.
func (s *Scheduler) Entries() []time.Time {
	var out []time.Time
	for _, e := range s.cron.Entries() {
		out = append(out, e.Next)
	}
	return out
}

// RunSnapshots records one snapshot per symbol while the market is open.
// It returns the number recorded.
func (s *Scheduler) RunSnapshots(ctx context.Context) int {
	now := s.now()
	if !s.calendar.IsMarketOpen(now) {
		s.log.Debug("market closed, skipping snapshots", "next_open", s.calendar.NextOpen(now))
		return 0
	}
	n := 0
	for _, sym := range s.symbols {
		if ctx.Err() != nil {
			break
		}
		snap, err := s.snap.RecordSnapshot(ctx, sym)
		if err != nil {
			s.log.Error("snapshot failed", "symbol", sym, "error", err)
			continue
		}
		n++
		s.log.Info("snapshot recorded", "symbol", snap.Symbol, "pcr", snap.PCR, "max_pain", snap.MaxPain)
	}
	return n
}

// RunArchive archives recent bars for every symbol on trading days.
func (s *Scheduler) RunArchive(ctx context.Context) (int, error) {
	if !s.calendar.IsTradingDay(s.now()) {
		s.log.Debug("not a trading day, skipping archive")
		return 0, nil
	}
	if len(s.symbols) == 0 {
		return 0, errors.New("no symbols configured")
	}
	n, err := s.archive.ArchiveBars(ctx, s.symbols, s.days)
	if err != nil {
		s.log.Error("archive run", "written", n, "error", err)
	}
	return n, err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
