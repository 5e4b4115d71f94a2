package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/safartrip/safarbot/metrics"
	"github.com/safartrip/safarbot/store"
)

// SweepInterval is how often overdue bookings are collected.
const SweepInterval = 30 * time.Second

// errorReporter forwards operational failures to the admin chats.
type errorReporter interface {
	Report(ctx context.Context, err error, where string)
}

// Sweeper periodically times out overdue bookings. The store does the
// transition atomically; the sweeper only drives the clock and fans out
// notifications. Safe to run on several instances at once.
type Sweeper struct {
	store    *store.Store
	engine   *Engine
	reporter errorReporter
	metrics  *metrics.Metrics
	interval time.Duration
}

// NewSweeper wires a sweeper with the default interval.
func NewSweeper(st *store.Store, engine *Engine, reporter errorReporter, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		store:    st,
		engine:   engine,
		reporter: reporter,
		metrics:  m,
		interval: SweepInterval,
	}
}

// Run blocks until the context is cancelled. A failing sweep is logged
// and retried on the next tick; the loop itself never dies.
func (s *Sweeper) Run(ctx context.Context) error {
	slog.Info("sweeper: started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper: stopped")
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	rows, err := s.store.SweepExpired(ctx)
	if err != nil {
		slog.Error("sweeper: sweep failed", "error", err)
		if s.reporter != nil {
			s.reporter.Report(ctx, err, "sweeper")
		}
		return
	}
	s.metrics.SweepTick(len(rows))
	if len(rows) == 0 {
		return
	}
	slog.Info("sweeper: expired bookings processed", "count", len(rows))
	s.engine.HandleExpired(ctx, rows)
}
