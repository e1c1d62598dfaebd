// Package clock provides the simulated clock shared by the scheduler and
// its workers. The scheduler is the only writer; everyone else reads.
package clock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/me/ossim/pkg/model"
)

// ErrClosed is returned by WaitUntil once the clock has been released.
var ErrClosed = errors.New("clock closed")

// Clock is a monotonically advancing SimTime.
type Clock struct {
	mu     sync.RWMutex
	now    model.SimTime
	tick   chan struct{} // closed and replaced on every Advance
	closed bool
}

// New returns a clock at 0:000000000.
func New() *Clock {
	return &Clock{tick: make(chan struct{})}
}

// Now returns the current reading.
func (c *Clock) Now() model.SimTime {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by delta and wakes every waiter.
// A negative delta panics.
func (c *Clock) Advance(delta time.Duration) model.SimTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
	if !c.closed {
		close(c.tick)
		c.tick = make(chan struct{})
	}
	return c.now
}

// WaitUntil blocks until the clock reads at least target. It returns the
// reading that satisfied the wait.
func (c *Clock) WaitUntil(ctx context.Context, target model.SimTime) (model.SimTime, error) {
	for {
		c.mu.RLock()
		now, tick, closed := c.now, c.tick, c.closed
		c.mu.RUnlock()

		if closed {
			return now, model.NewResourceError("wait on clock", ErrClosed)
		}
		if now.Compare(target) >= 0 {
			return now, nil
		}

		select {
		case <-ctx.Done():
			return now, ctx.Err()
		case <-tick:
		}
	}
}

// Closed reports whether Close has been called.
func (c *Clock) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close releases the clock. Pending and future waits fail with ErrClosed;
// Now keeps returning the final reading. Close is idempotent.
func (c *Clock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.tick)
	return nil
}
