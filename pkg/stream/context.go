package stream

import (
	"sync/atomic"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/core"
)

// Context holds per-transfer mutable state: the cooperative cancel flag and
// byte counters. Owned by the executing orchestrator; the command layer only
// reads it through the accessors.
type Context struct {
	running     atomic.Bool
	transferred atomic.Int64
	total       atomic.Int64
	timeout     time.Duration

	// observer, if set before execution starts, is notified on every
	// counter change
	observer core.ProgressObserver
}

// NewContext creates transfer state with the given inactivity bound
func NewContext(timeout time.Duration) *Context {
	c := &Context{timeout: timeout}
	c.running.Store(true)
	c.total.Store(-1)
	return c
}

// Running reports whether the transfer should keep going
func (c *Context) Running() bool {
	return c.running.Load()
}

// Stop signals cooperative cancellation. The transfer unwinds at its next
// checkpoint; there is no preemptive interruption.
func (c *Context) Stop() {
	c.running.Store(false)
}

// Observe registers a progress observer. Must be called before execution
// starts; not safe to call concurrently with counter updates.
func (c *Context) Observe(obs core.ProgressObserver) {
	c.observer = obs
}

// AddTransferred accumulates bytes moved so far
func (c *Context) AddTransferred(n int64) {
	c.transferred.Add(n)
	c.notify()
}

// SetTotal records the resolved content length; negative means unknown
func (c *Context) SetTotal(n int64) {
	c.total.Store(n)
	c.notify()
}

func (c *Context) notify() {
	if c.observer != nil {
		c.observer.Update(c.transferred.Load(), c.total.Load())
	}
}

// Progress returns the current byte counters
func (c *Context) Progress() (done, total int64) {
	return c.transferred.Load(), c.total.Load()
}

// Timeout returns the per-request inactivity bound
func (c *Context) Timeout() time.Duration {
	return c.timeout
}
