// Package cron schedules record retention. On each tick the configured
// prune function deletes every record older than the retention window.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// DefaultSchedule prunes once a day at 03:00 local time.
const DefaultSchedule = "0 3 * * *"

// PruneFunc deletes records added before the cutoff and returns how many
// were removed. store.Store.Prune satisfies it.
type PruneFunc func(ctx context.Context, before time.Time) (int64, error)

// Status is the outcome of the most recent run.
type Status struct {
	LastRun   time.Time
	LastError string
	Removed   int64
	NextRun   time.Time
}

// Service runs PruneFunc on a cron schedule.
type Service struct {
	schedule  robfigcron.Schedule
	expr      string
	retention time.Duration
	prune     PruneFunc
	now       func() time.Time

	robfig *robfigcron.Cron

	mu     sync.Mutex
	status Status
}

var parser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// NewService validates expr. An empty expr means DefaultSchedule.
// A retention of zero or less disables pruning; Start then only waits.
func NewService(expr string, retention time.Duration, prune PruneFunc) (*Service, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cron: invalid prune schedule %q: %w", expr, err)
	}
	return &Service{
		schedule:  sched,
		expr:      expr,
		retention: retention,
		prune:     prune,
		now:       time.Now,
		robfig:    robfigcron.New(),
	}, nil
}

// Enabled reports whether a retention window is configured.
func (s *Service) Enabled() bool { return s.retention > 0 && s.prune != nil }

// Start arms the schedule and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if !s.Enabled() {
		slog.Info("cron: retention disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.robfig.Schedule(s.schedule, robfigcron.FuncJob(func() {
		if _, err := s.RunOnce(ctx); err != nil {
			slog.Error("cron: prune failed", "err", err)
		}
	}))
	s.robfig.Start()
	slog.Info("cron: started", "schedule", s.expr, "retention", s.retention)

	<-ctx.Done()
	<-s.robfig.Stop().Done()
	return ctx.Err()
}

// RunOnce prunes immediately.
func (s *Service) RunOnce(ctx context.Context) (int64, error) {
	started := s.now()
	cutoff := started.Add(-s.retention)
	n, err := s.prune(ctx, cutoff)

	s.mu.Lock()
	s.status.LastRun = started
	s.status.Removed = n
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		return n, fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	slog.Info("cron: pruned records", "removed", n, "before", cutoff)
	return n, nil
}

// Status returns the last run and the next scheduled one.
func (s *Service) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	if s.Enabled() {
		st.NextRun = s.schedule.Next(s.now())
	}
	return st
}
