package engine

import "sync/atomic"

// Clock is the monotonic logical clock that stamps journaled messages.
//
// Every outbound command and inbound notification gets a strictly
// increasing seq. Ordering never depends on wall time, so a replayed
// session reproduces the original order.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though only the tick goroutine calls Next in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next seq is start+1.
// Used to continue a journaled session after a restart.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
