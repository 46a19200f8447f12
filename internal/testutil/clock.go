package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a resettable logical clock that also serves as a
// wall clock, so stored timestamps come out identical on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock starting at 0.
// The first call to Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the next sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset sets the clock back to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// Now advances the clock and returns it as seconds past the Unix epoch.
// Matches the func() time.Time shape of store.WithClock.
func (c *DeterministicClock) Now() time.Time {
	return time.Unix(c.Next(), 0).UTC()
}
