package starlink

import (
	"context"
	"sync"
	"time"
)

// defaultRefreshInterval is used when the scheduler is given no interval.
const defaultRefreshInterval = 60 * time.Second

// Refresher is refreshed on every scheduler tick.
// *Publisher satisfies it.
type Refresher interface {
	Refresh(ctx context.Context)
}

// Scheduler drives periodic refreshes on the event loop. A tick that fires
// while the previous refresh is still running is dropped by the loop, so
// refreshes never overlap.
type Scheduler struct {
	ticker    Ticker
	refresher Refresher
	interval  time.Duration

	mu   sync.Mutex
	stop func()
}

// NewScheduler creates a scheduler. Zero interval means 60 seconds.
func NewScheduler(t Ticker, r Refresher, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Scheduler{ticker: t, refresher: r, interval: interval}
}

// Start registers the refresh timer. ctx is passed to every refresh.
// Calling Start again replaces the previous timer.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		s.stop()
	}
	s.stop = s.ticker.Every(s.interval, func() {
		s.refresher.Refresh(ctx)
	})
}

// Stop cancels the refresh timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

// Interval returns the refresh period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
