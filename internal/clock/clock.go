// Package clock provides the single monotonic time source shared by every
// component of the probe engine.
package clock

import "time"

// A Clock caches "now" for the duration of one event-loop iteration so that
// every observer within that iteration agrees on the current time.
type Clock struct {
	start time.Time
	now   int64
}

// New returns a Clock anchored at the current monotonic time.
func New() *Clock {
	c := &Clock{start: time.Now()}
	c.Refresh()
	return c
}

// Refresh re-reads the underlying time source and returns the new cached
// value. Call this once per loop iteration, after a sleep or a send.
func (c *Clock) Refresh() int64 {
	c.now = time.Since(c.start).Nanoseconds()
	return c.now
}

// Now returns the nanosecond timestamp cached by the most recent Refresh.
func (c *Clock) Now() int64 { return c.now }

// Convert maps an absolute time.Time (such as a kernel-supplied socket
// receive timestamp) into this Clock's nanosecond domain, so it can be
// compared directly against values returned by Now/Refresh.
func (c *Clock) Convert(t time.Time) int64 { return t.Sub(c.start).Nanoseconds() }
