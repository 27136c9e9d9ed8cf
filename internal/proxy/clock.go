package proxy

import "sync/atomic"

// Clock is a monotonic logical clock for event ordering.
//
// Every audit event is stamped with a strictly increasing seq number from
// this clock. This ensures:
// - Upgrades are totally ordered by acceptance sequence
// - The audit trail replays in a deterministic order
// - No dependence on wall-clock monotonicity
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the proxy's one-call-at-a-time model means a single goroutine
// typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used on startup to resume past the highest persisted event seq.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
