package transfer

import (
	"context"
	"time"
)

// watchdog cancels a request context when no data arrives for the inactivity
// bound. This mirrors a low-speed abort: the bound is on silence, not on the
// total transfer duration.
type watchdog struct {
	timer *time.Timer
	d     time.Duration
}

func newWatchdog(d time.Duration, cancel context.CancelFunc) *watchdog {
	return &watchdog{
		timer: time.AfterFunc(d, cancel),
		d:     d,
	}
}

// Reset re-arms the inactivity window; called on every data arrival
func (w *watchdog) Reset() {
	w.timer.Reset(w.d)
}

// Stop disarms the watchdog
func (w *watchdog) Stop() {
	w.timer.Stop()
}
