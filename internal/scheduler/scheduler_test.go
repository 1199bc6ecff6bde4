package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tradedesk/internal/store"
	"tradedesk/internal/util"
)

type fakeEngine struct {
	mu       sync.Mutex
	snaps    []string
	archived [][]string
	days     int
	fail     map[string]bool
	snapped  chan struct{}
}

func (f *fakeEngine) RecordSnapshot(_ context.Context, symbol string) (store.OISnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[symbol] {
		return store.OISnapshot{}, errors.New("upstream down")
	}
	f.snaps = append(f.snaps, symbol)
	if f.snapped != nil {
		select {
		case f.snapped <- struct{}{}:
		default:
		}
	}
	return store.OISnapshot{Symbol: symbol}, nil
}

func (f *fakeEngine) ArchiveBars(_ context.Context, symbols []string, days int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, symbols)
	f.days = days
	return len(symbols) * days, nil
}

func newTestScheduler(t *testing.T, f *fakeEngine, opts Options) *Scheduler {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Calendar == nil {
		opts.Calendar = util.NewTradingCalendar("2024-08-15")
	}
	s, err := New(f, f, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func ist(t *testing.T, s *Scheduler, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, s.calendar.Location())
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestRunSnapshotsDuringSession(t *testing.T) {
	f := &fakeEngine{fail: map[string]bool{"BANKNIFTY": true}}
	s := newTestScheduler(t, f, Options{Symbols: []string{"NIFTY", "BANKNIFTY", "FINNIFTY"}})

	tests := []struct {
		name string
		at   string
		want int
	}{
		{"before open", "2024-08-14 09:00", 0},
		{"at open", "2024-08-14 09:15", 2},
		{"midday", "2024-08-14 12:30", 2},
		{"at close", "2024-08-14 15:30", 0},
		{"holiday", "2024-08-15 11:00", 0},
		{"saturday", "2024-08-17 11:00", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			at := ist(t, s, tc.at)
			s.now = func() time.Time { return at }
			if got := s.RunSnapshots(context.Background()); got != tc.want {
				t.Errorf("RunSnapshots at %s = %d, want %d", tc.at, got, tc.want)
			}
		})
	}
}

func TestRunArchive(t *testing.T) {
	f := &fakeEngine{}
	s := newTestScheduler(t, f, Options{Symbols: []string{"INFY", "TCS"}, ArchiveDays: 3})

	s.now = func() time.Time { return ist(t, s, "2024-08-14 15:45") }
	n, err := s.RunArchive(context.Background())
	if err != nil || n != 6 {
		t.Errorf("RunArchive = %d, %v; want 6, nil", n, err)
	}
	if len(f.archived) != 1 || f.days != 3 {
		t.Errorf("archived = %v days=%d", f.archived, f.days)
	}

	s.now = func() time.Time { return ist(t, s, "2024-08-18 15:45") }
	if n, err := s.RunArchive(context.Background()); n != 0 || err != nil {
		t.Errorf("Sunday archive = %d, %v", n, err)
	}

	empty := newTestScheduler(t, f, Options{})
	empty.now = func() time.Time { return ist(t, empty, "2024-08-14 15:45") }
	if _, err := empty.RunArchive(context.Background()); err == nil {
		t.Error("archive without symbols should fail")
	}
}

func TestNewRegistersJobs(t *testing.T) {
	f := &fakeEngine{}
	s := newTestScheduler(t, f, Options{
		SnapshotCron: "0 */5 * * * 1-5",
		ArchiveCron:  "0 45 15 * * 1-5",
	})
	s.Start()
	defer s.Stop()

	next := s.Entries()
	if len(next) != 2 {
		t.Fatalf("entries = %d, want 2", len(next))
	}
	for _, n := range next {
		if n.Location().String() != s.calendar.Location().String() {
			t.Errorf("next run %v not in exchange time", n)
		}
	}

	if _, err := New(f, f, Options{SnapshotCron: "every five minutes"}); err == nil {
		t.Error("invalid cron expression should fail")
	}
	if _, err := New(f, f, Options{SnapshotCron: "*/5 * * * *"}); err == nil {
		t.Error("five-field expression should fail with a seconds parser")
	}
}

func TestSnapshotJobFires(t *testing.T) {
	f := &fakeEngine{snapped: make(chan struct{}, 1)}
	s := newTestScheduler(t, f, Options{SnapshotCron: "@every 1s", Symbols: []string{"NIFTY"}})
	open := ist(t, s, "2024-08-14 10:00")
	s.now = func() time.Time { return open }

	s.Start()
	defer s.Stop()

	select {
	case <-f.snapped:
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot job did not fire")
	}
}
