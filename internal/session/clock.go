package session

import "sync/atomic"

// Clock is the meeting clock. It advances with capture timestamps, not
// wall time, so transcript positions stay aligned with the audio stream.
type Clock struct {
	ns atomic.Int64
}

// NewClock creates a clock at zero.
func NewClock() *Clock {
	return &Clock{}
}

// Update advances the clock to ns. Earlier timestamps are ignored.
func (c *Clock) Update(ns int64) {
	for {
		cur := c.ns.Load()
		if ns <= cur {
			return
		}
		if c.ns.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// NowNS returns the current meeting time in nanoseconds.
func (c *Clock) NowNS() int64 {
	return c.ns.Load()
}

// Seconds returns the current meeting time in seconds.
func (c *Clock) Seconds() float64 {
	return float64(c.ns.Load()) / 1e9
}
