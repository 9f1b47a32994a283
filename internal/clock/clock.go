// Package clock provides the wall clock used by crawl runs and a manual clock
// for tests.
package clock

import (
	"sync"
	"time"
)

// System reads the real time in UTC.
type System struct{}

// Now implements crawler.Clock.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual returns a time that only moves when told to. Each call to Now
// advances it by Step.
type Manual struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewManual starts a Manual clock at start.
func NewManual(start time.Time, step time.Duration) *Manual {
	return &Manual{now: start, Step: step}
}

// Now returns the current manual time, then advances it by Step.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now
	m.now = m.now.Add(m.Step)
	return now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
