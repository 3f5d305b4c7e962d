package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a thread-safe clock for tests that advances by a
// fixed step on every call. It satisfies the func() time.Time shape used by
// journal.WithClock via its Now method.
type DeterministicClock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	seq  int64
}

// NewDeterministicClock creates a clock starting at base. The first call to
// Now returns base+step.
func NewDeterministicClock(base time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{base: base, step: step}
}

// Now advances the clock one step and returns the new time.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.base.Add(time.Duration(c.seq) * c.step)
}

// Ticks returns how many times Now has been called.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to base.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
