// Package sweeper evicts expired pending codes from the in-process
// verification store. The redis store relies on key TTLs instead.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ErlanBelekov/fallah-auth/internal/metrics"
)

type purger interface {
	PurgeExpired(ctx context.Context) (int, error)
	Len() int
}

type Sweeper struct {
	store    purger
	schedule cron.Schedule
	expr     string
	logger   *slog.Logger
}

// New parses expr as a standard cron expression or descriptor such as
// "@every 1m".
func New(store purger, expr string, logger *slog.Logger) (*Sweeper, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}
	return &Sweeper{
		store:    store,
		schedule: sched,
		expr:     expr,
		logger:   logger.With("component", "sweeper"),
	}, nil
}

// Start runs sweeps on the schedule until ctx is cancelled. An in-flight
// sweep is allowed to finish before Start returns.
func (s *Sweeper) Start(ctx context.Context) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.Sweep(ctx) }))
	c.Start()

	s.logger.Info("sweeper started", "schedule", s.expr)

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper shut down")
}

// Sweep purges expired entries once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	evicted, err := s.store.PurgeExpired(ctx)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.ErrorContext(ctx, "purge expired codes", "error", err)
		return 0
	}

	metrics.SweepEvictedTotal.Add(float64(evicted))
	metrics.PendingVerifications.Set(float64(s.store.Len()))
	if evicted > 0 {
		s.logger.DebugContext(ctx, "evicted expired codes", "count", evicted)
	}
	return evicted
}
