package engine

import "sync/atomic"

// Clock issues the seq numbers that order the action log. Dispatched
// invocations and sync effects draw from the same Clock, so seqs are
// unique and increasing across both.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first seq is 1.
func NewClock() *Clock { return &Clock{} }

// NewClockAt returns a clock resuming after last, the highest seq already
// recorded in the store.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.seq.Store(last)
	return c
}

// Next issues a seq.
func (c *Clock) Next() int64 { return c.seq.Add(1) }

// Current is the last issued seq, or the resume point if none was issued.
func (c *Clock) Current() int64 { return c.seq.Load() }
