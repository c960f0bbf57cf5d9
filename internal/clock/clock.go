// Package clock abstracts wall time and periodic scheduling so timing logic can be
// stepped deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current wall time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the real wall clock.
func System() Clock {
	return systemClock{}
}

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Seconds converts a duration to fractional seconds.
func Seconds(d time.Duration) float64 {
	return float64(d) / float64(time.Second)
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
