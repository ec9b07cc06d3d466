package authsession

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Sweeper periodically expires idle sessions. It is the only background
// task in the system; a tick that fires while the previous sweep is still
// running is skipped rather than stacked.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	running  atomic.Bool
	onSwept  func(removed int)
	log      *slog.Logger
}

func NewSweeper(manager *Manager, interval time.Duration, onSwept func(removed int)) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		manager:  manager,
		interval: interval,
		onSwept:  onSwept,
		log:      manager.log,
	}
}

// Run blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(time.Now())
		}
	}
}

func (s *Sweeper) sweepOnce(now time.Time) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	removed, err := s.manager.Sweep(now)
	if err != nil {
		s.log.Warn("session sweep failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		s.log.Info("session sweep", slog.Int("removed", removed))
	}
	if s.onSwept != nil {
		s.onSwept(removed)
	}
}
