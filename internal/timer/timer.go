// Package timer drives the per-second countdown and the checkpoint cadence.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler owns the tick and checkpoint tickers for one session.
type Scheduler struct {
	clock           clockwork.Clock
	tickEvery       time.Duration
	checkpointEvery time.Duration

	mu         sync.Mutex
	tick       clockwork.Ticker
	checkpoint clockwork.Ticker
	stopped    bool

	// never fires; returned before Start and after Stop
	idle chan time.Time
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(clock clockwork.Clock, tickEvery, checkpointEvery time.Duration) *Scheduler {
	return &Scheduler{
		clock:           clock,
		tickEvery:       tickEvery,
		checkpointEvery: checkpointEvery,
		idle:            make(chan time.Time),
	}
}

// Start arms both tickers. Calling Start on a running scheduler is a no-op;
// a stopped scheduler cannot be restarted.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tick != nil || s.stopped {
		return
	}
	s.tick = s.clock.NewTicker(s.tickEvery)
	s.checkpoint = s.clock.NewTicker(s.checkpointEvery)
}

// Stop cancels both tickers. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.tick != nil {
		s.tick.Stop()
		s.checkpoint.Stop()
	}
}

// Ticks fires once per tick interval while running.
func (s *Scheduler) Ticks() <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tick == nil || s.stopped {
		return s.idle
	}
	return s.tick.Chan()
}

// Checkpoints fires once per checkpoint interval while running.
func (s *Scheduler) Checkpoints() <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkpoint == nil || s.stopped {
		return s.idle
	}
	return s.checkpoint.Chan()
}

// Remaining returns the time left until deadline, never negative.
func Remaining(deadline, now time.Time) time.Duration {
	d := deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Format renders d as mm:ss, or h:mm:ss once it reaches an hour.
// Partial seconds round up so 00:00 is only shown at the deadline.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64((d + time.Second - 1) / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
