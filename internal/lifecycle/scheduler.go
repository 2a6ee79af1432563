package lifecycle

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler holds at most one pending teardown. Every Schedule and Cancel
// advances the generation, so a timer that fires after being replaced or
// cancelled can be recognised as stale through Fire.
type Scheduler struct {
	clock clock.Clock

	mu         sync.Mutex
	timer      *clock.Timer
	generation uint64
	pending    bool
}

func NewScheduler(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{clock: clk}
}

// Schedule arms fn to run after delay, replacing any earlier schedule. fn
// receives the generation it was armed with.
func (s *Scheduler) Schedule(delay time.Duration, fn func(generation uint64)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.generation++
	s.pending = true

	generation := s.generation
	s.timer = s.clock.AfterFunc(delay, func() {
		fn(generation)
	})
	return generation
}

// Cancel disarms the pending schedule. It reports false when nothing was
// armed.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return false
	}
	s.stopLocked()
	s.generation++
	s.pending = false
	return true
}

// Fire claims the schedule for generation. Only the first caller holding
// the current generation gets true; after that the scheduler is idle.
func (s *Scheduler) Fire(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending || generation != s.generation {
		return false
	}
	s.pending = false
	s.timer = nil
	return true
}

// Current reports whether generation is still the armed schedule, without
// claiming it.
func (s *Scheduler) Current(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending && generation == s.generation
}

func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
