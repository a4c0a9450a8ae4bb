package negotiation

import "time"

// sessionClock never goes backwards, so message timestamps within a session
// are non-decreasing even if the wall clock steps back. Only the session's
// own loop reads it.
type sessionClock struct {
	now  func() time.Time
	last time.Time
}

func newSessionClock(now func() time.Time) *sessionClock {
	return &sessionClock{now: now}
}

// Now returns the later of the wall clock and the last reading.
func (c *sessionClock) Now() time.Time {
	t := c.now()
	if t.Before(c.last) {
		return c.last
	}
	c.last = t
	return t
}
