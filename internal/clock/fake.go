package clock

import "time"

// FakeClock is a Clock pinned to a fixed instant. Tests move it with
// Advance so every timestamp they assert on is deterministic.
type FakeClock struct {
	now time.Time
}

// NewFakeClock returns a FakeClock pinned at t, normalized to UTC.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
