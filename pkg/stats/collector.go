// Package stats keeps running transfer counters for the session: totals,
// outcomes by failure kind and bytes moved. Counters back the stats query
// command and the shutdown summary log line.
package stats

import (
	"sync"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/core"
)

// Collector accumulates transfer counters
type Collector struct {
	mu sync.RWMutex

	started   int64
	completed int64
	failed    map[core.Kind]int64
	bytes     int64
	duration  time.Duration
}

// Summary is a point-in-time copy of the counters
type Summary struct {
	Started   int64
	Completed int64
	Failed    int64
	FailedBy  map[core.Kind]int64
	Bytes     int64
	Duration  time.Duration
}

// New creates an empty collector
func New() *Collector {
	return &Collector{failed: make(map[core.Kind]int64)}
}

// Start counts an admitted transfer entering execution
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

// Finish records a transfer outcome with the bytes it moved
func (c *Collector) Finish(err error, bytes int64, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bytes += bytes
	c.duration += elapsed
	if err == nil {
		c.completed++
		return
	}
	c.failed[core.KindOf(err)]++
}

// Snapshot returns a copy of the current counters
func (c *Collector) Snapshot() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Summary{
		Started:   c.started,
		Completed: c.completed,
		Bytes:     c.bytes,
		Duration:  c.duration,
		FailedBy:  make(map[core.Kind]int64, len(c.failed)),
	}
	for kind, n := range c.failed {
		s.FailedBy[kind] = n
		s.Failed += n
	}
	return s
}

// Reset clears all counters
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.started = 0
	c.completed = 0
	c.bytes = 0
	c.duration = 0
	c.failed = make(map[core.Kind]int64)
}
