// Package executor implements the single-slot transfer executor: one
// pending request, one currently executing request, one worker goroutine.
// Submission fails immediately while the slot is occupied; there is no
// queue beyond the single pending slot.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/stats"
	"github.com/hollowaylabs/atfetch/pkg/status"
	"github.com/hollowaylabs/atfetch/pkg/stream"
)

// Runner executes a single transfer to completion. Satisfied by
// transfer.Orchestrator.
type Runner interface {
	Execute(tc *stream.Context, req *core.TransferRequest) error
}

// Result summarizes one finished transfer
type Result struct {
	ID       string
	Err      error
	Bytes    int64
	Total    int64 // -1 when the length was never known
	Duration time.Duration
}

// Executor owns the pending and executing slots and the worker goroutine
// that drains them
type Executor struct {
	runner  Runner
	tracker *status.Tracker
	stats   *stats.Collector
	log     *slog.Logger

	mu      sync.Mutex
	pending *core.TransferRequest
	current *core.TransferRequest
	curCtx  *stream.Context
	last    *Result
	started bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New creates an executor; call Start before submitting
func New(runner Runner, tracker *status.Tracker, collector *stats.Collector, log *slog.Logger) *Executor {
	return &Executor{
		runner:  runner,
		tracker: tracker,
		stats:   collector,
		log:     log,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Idempotent.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	go e.run()
}

// Shutdown stops the current transfer cooperatively and waits for the
// worker to exit, bounded by ctx
func (e *Executor) Shutdown(ctx context.Context) error {
	e.StopCurrent()
	close(e.quit)
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit places a request in the pending slot. Returns core.ErrBusy without
// side effects when a transfer is already pending or executing.
func (e *Executor) Submit(req *core.TransferRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return errors.New("executor not started")
	}
	if e.pending != nil || e.current != nil {
		return core.ErrBusy
	}
	e.pending = req
	e.tracker.Register(req)

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// StopCurrent clears the pending request and signals the executing one to
// stop at its next checkpoint. Returns whether a running transfer was
// signalled; clearing only a queued request does not count.
func (e *Executor) StopCurrent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		e.tracker.Cancel(e.pending.ID)
		e.pending = nil
	}
	if e.curCtx != nil {
		e.curCtx.Stop()
		return true
	}
	return false
}

// Status reports the slot state
func (e *Executor) Status() core.ExecStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.current != nil:
		return core.StatusExecuting
	case e.pending != nil:
		return core.StatusQueued
	}
	return core.StatusIdle
}

// Progress returns the executing transfer's byte counters; ok is false
// when nothing is executing
func (e *Executor) Progress() (done, total int64, ok bool) {
	e.mu.Lock()
	tc := e.curCtx
	e.mu.Unlock()

	if tc == nil {
		return 0, 0, false
	}
	done, total = tc.Progress()
	return done, total, true
}

// LastResult returns the most recent finished transfer, or nil
func (e *Executor) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last == nil {
		return nil
	}
	res := *e.last
	return &res
}

// run is the worker loop: sleep until woken, then drain the pending slot
func (e *Executor) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case <-e.wake:
		}
		e.drain()
	}
}

// drain executes pending requests until the slot is empty
func (e *Executor) drain() {
	for {
		e.mu.Lock()
		req := e.pending
		if req == nil {
			e.mu.Unlock()
			return
		}
		e.pending = nil
		tc := stream.NewContext(req.Timeout)
		e.current = req
		e.curCtx = tc
		e.mu.Unlock()

		e.execute(tc, req)

		select {
		case <-e.quit:
			return
		default:
		}
	}
}

// trackerObserver feeds live byte counters into the status tracker
type trackerObserver struct {
	tracker *status.Tracker
	id      string
}

func (o trackerObserver) Update(done, total int64) {
	o.tracker.Update(o.id, done, total)
}

func (e *Executor) execute(tc *stream.Context, req *core.TransferRequest) {
	tc.Observe(trackerObserver{tracker: e.tracker, id: req.ID})
	e.tracker.Start(req.ID)
	e.stats.Start()
	e.log.Info("transfer started", "id", req.ID, "method", req.Method, "url", req.URL)

	start := time.Now()
	err := e.runner.Execute(tc, req)
	elapsed := time.Since(start)

	done, total := tc.Progress()
	e.tracker.Update(req.ID, done, total)
	switch {
	case err == nil:
		e.tracker.Complete(req.ID)
	case core.KindOf(err) == core.KindCancelled:
		e.tracker.Cancel(req.ID)
	default:
		e.tracker.Fail(req.ID, err)
	}
	e.stats.Finish(err, done, elapsed)

	e.mu.Lock()
	e.current = nil
	e.curCtx = nil
	e.last = &Result{ID: req.ID, Err: err, Bytes: done, Total: total, Duration: elapsed}
	e.mu.Unlock()
}
