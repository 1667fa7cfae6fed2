package progress

import (
	"sync"
	"time"
)

// Stats tracks how long settled uploads took, for reporting.
type Stats struct {
	sum       time.Duration
	max       time.Duration
	succeeded int64
	failed    int64
	mu        sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records the duration of a settled upload.
func (s *Stats) Update(d time.Duration, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sum += d
	if d > s.max {
		s.max = d
	}
	if succeeded {
		s.succeeded++
	} else {
		s.failed++
	}
}

// Average returns the average duration of settled uploads.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := s.succeeded + s.failed
	if finished == 0 {
		return 0
	}
	return s.sum / time.Duration(finished)
}

// Slowest returns the longest recorded upload duration.
func (s *Stats) Slowest() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

// FinishedCount returns the number of settled uploads.
func (s *Stats) FinishedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.succeeded + s.failed
}

// FailedCount returns the number of uploads that settled with a failure.
func (s *Stats) FailedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// TotalDuration returns the sum of all upload durations.
func (s *Stats) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}
