package hw

import "sync"

// ManualClock is a virtual tick counter. It only moves when told to,
// which makes every elapsed-tick sequence reproducible.
//
// Thread-safety: all methods are safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a clock reading start.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current tick.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d ticks and returns the new reading.
// Negative d is ignored; the clock is monotonic.
func (c *ManualClock) Advance(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d
	}
	return c.now
}

// Set moves the clock to t if t is not in the past.
func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}
