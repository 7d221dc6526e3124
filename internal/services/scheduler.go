package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleEvictor drops sessions that have seen no events for longer than maxIdle.
type IdleEvictor interface {
	EvictIdle(ctx context.Context, maxIdle time.Duration) int
}

// Scheduler periodically reaps abandoned exam sessions.
type Scheduler struct {
	log      *zap.Logger
	sessions IdleEvictor
	interval time.Duration

	mu      sync.Mutex
	maxIdle time.Duration
}

func NewScheduler(log *zap.Logger, sessions IdleEvictor, interval, maxIdle time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		log:      log,
		sessions: sessions,
		interval: interval,
		maxIdle:  maxIdle,
	}
}

// SetMaxIdle changes the idle limit used from the next sweep on.
func (s *Scheduler) SetMaxIdle(d time.Duration) {
	s.mu.Lock()
	s.maxIdle = d
	s.mu.Unlock()
}

// Start runs the scheduler in a goroutine until ctx is done. The returned channel closes when the
// goroutine has exited.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	s.log.Info("Starting idle session reaper", zap.Duration("interval", s.interval))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runIdleSweep(ctx)
			}
		}
	}()
	return done
}

func (s *Scheduler) runIdleSweep(ctx context.Context) int {
	s.mu.Lock()
	maxIdle := s.maxIdle
	s.mu.Unlock()
	if maxIdle <= 0 {
		return 0
	}

	evicted := s.sessions.EvictIdle(ctx, maxIdle)
	if evicted > 0 {
		s.log.Info("Evicted idle exam sessions", zap.Int("count", evicted), zap.Duration("max_idle", maxIdle))
	} else {
		s.log.Debug("Idle sweep found nothing to evict")
	}
	return evicted
}
