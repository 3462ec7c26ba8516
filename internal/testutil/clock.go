package testutil

import (
	"sync"
	"time"
)

// FakeClock is a controllable wall clock for tests.
//
// Concepts stamp createdAt and compute token expiry from Now(). Tests
// move time forward with Advance to cover expiry paths.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// DefaultTime is the instant a FakeClock starts at unless told otherwise.
var DefaultTime = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

// NewFakeClock creates a clock frozen at start. A zero start means DefaultTime.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = DefaultTime
	}
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Tick advances the clock by one second and returns the new time.
// Use as a concept's time source when every call must be distinct.
func (c *FakeClock) Tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
