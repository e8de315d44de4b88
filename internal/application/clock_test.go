package application

import (
	"context"
	"sync"
	"time"
)

// noSleepClock returns from Sleep at once.
type noSleepClock struct{}

func (noSleepClock) Now() time.Time { return time.Now() }

func (noSleepClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// steppingClock advances its own time by every Sleep.
type steppingClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func (c *steppingClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// scriptedClock calls onSleep with the 1-based number of every Sleep before
// returning. Tests use it to change state or cancel between trigger rounds.
type scriptedClock struct {
	mu      sync.Mutex
	count   int
	onSleep func(n int)
}

func (c *scriptedClock) Now() time.Time { return time.Now() }

func (c *scriptedClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.mu.Lock()
	c.count++
	n := c.count
	c.mu.Unlock()

	if c.onSleep != nil {
		c.onSleep(n)
	}
	return ctx.Err()
}
