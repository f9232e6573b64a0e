// Package heartbeat periodically sweeps the hub for connections that have
// gone quiet and closes them.
package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// Closer closes connections idle for longer than maxIdle and returns how
// many it closed. hub.Hub satisfies it.
type Closer interface {
	CloseIdle(maxIdle time.Duration) int
}

// Service runs the idle sweep on a ticker.
type Service struct {
	hub      Closer
	maxIdle  time.Duration
	interval time.Duration
}

// NewService creates a sweeper. interval defaults to 30 seconds if zero.
// A maxIdle of zero or less disables sweeping.
func NewService(hub Closer, maxIdle, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Service{
		hub:      hub,
		maxIdle:  maxIdle,
		interval: interval,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.maxIdle <= 0 {
		slog.Info("heartbeat: idle sweep disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("heartbeat: started", "interval", s.interval, "maxIdle", s.maxIdle)

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			slog.Info("heartbeat: stopped")
			return ctx.Err()
		}
	}
}

func (s *Service) sweep() {
	if n := s.hub.CloseIdle(s.maxIdle); n > 0 {
		slog.Info("heartbeat: closed idle connections", "count", n)
	}
}
