package engine

import "sync/atomic"

// Clock is a monotonic logical counter.
//
// The engine keeps two: one hands out assembly ids, the other stamps
// recorded notifications. Values start at 1, so 0 can mean "none".
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1.
// Used when resuming an event log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next value and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
