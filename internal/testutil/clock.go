package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe stepping clock for tests and seeding.
//
// Every call to Now returns an instant Step later than the previous one,
// so writes made through a store never share a timestamp unless Freeze is
// in effect.
type Clock struct {
	mu     sync.Mutex
	start  time.Time
	step   time.Duration
	n      int64
	frozen bool
}

// NewClock creates a clock whose first reading is start.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{start: start.UTC(), step: step}
}

// Now returns the next instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	if !c.frozen {
		c.n++
	}
	return t
}

// Peek returns the instant the next call to Now will return.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(time.Duration(c.n) * c.step)
}

// Freeze stops the clock from advancing until Thaw is called.
func (c *Clock) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Thaw resumes stepping.
func (c *Clock) Thaw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = false
}

// Reset rewinds the clock to its start.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
	c.frozen = false
}
