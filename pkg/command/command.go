// Package command implements the serial command dispatcher: a single loop
// reads AT-style lines from the console, parses and admits transfers, and
// writes OK/ERROR replies. Serial upload payloads are collected here,
// synchronously, before submission, so the console never has two readers.
package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/config"
	"github.com/hollowaylabs/atfetch/pkg/console"
	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/executor"
	"github.com/hollowaylabs/atfetch/pkg/params"
	"github.com/hollowaylabs/atfetch/pkg/stats"
	"github.com/hollowaylabs/atfetch/pkg/status"
	"github.com/hollowaylabs/atfetch/pkg/storage"
)

// historyRetention bounds how long finished transfers stay queryable
// through AT+FETCHLOG; stale entries are pruned on each new admission.
const historyRetention = time.Hour

// Dispatcher owns the command loop and the session-level settings that
// commands may adjust
type Dispatcher struct {
	cfg    *config.Config
	port   *console.Port
	parser *params.Parser
	exec   *executor.Executor
	track  *status.Tracker
	store  *storage.Checker
	stats  *stats.Collector
	log    *slog.Logger

	// timeoutSeconds is the session inactivity bound applied to new
	// transfers; adjustable at runtime within the fixed bounds
	timeoutSeconds int
}

// New creates a dispatcher with the configured default timeout
func New(cfg *config.Config, port *console.Port, exec *executor.Executor, track *status.Tracker, store *storage.Checker, collector *stats.Collector, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:            cfg,
		port:           port,
		parser:         params.NewParser(cfg),
		exec:           exec,
		track:          track,
		store:          store,
		stats:          collector,
		log:            log,
		timeoutSeconds: cfg.Transfer.TimeoutSeconds,
	}
}

// Run reads and dispatches command lines until the console closes
func (d *Dispatcher) Run() error {
	for {
		line, err := d.port.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d.dispatch(line)
	}
}

func (d *Dispatcher) dispatch(line string) {
	switch {
	case line == "AT":
		d.ok()
	case line == "AT+FETCHSTOP":
		d.stop()
	case line == "AT+FETCHSTATE?":
		d.state()
	case line == "AT+FETCHPROG?":
		d.progress()
	case line == "AT+FETCHSTAT?":
		d.statistics()
	case line == "AT+FETCHLOG?":
		d.history(d.track.List())
	case strings.HasPrefix(line, "AT+FETCHLOG="):
		d.historyByState(strings.TrimPrefix(line, "AT+FETCHLOG="))
	case line == "AT+FETCHTIME?":
		d.port.Line(fmt.Sprintf("+FETCHTIME:%d", d.timeoutSeconds))
		d.ok()
	case strings.HasPrefix(line, "AT+FETCHTIME="):
		d.setTimeout(strings.TrimPrefix(line, "AT+FETCHTIME="))
	case strings.HasPrefix(line, "AT+FETCH="):
		d.fetch(strings.TrimPrefix(line, "AT+FETCH="))
	default:
		d.log.Debug("unknown command", "line", line)
		d.err()
	}
}

// fetch parses, admits and submits one transfer. The OK reply means the
// request was admitted; frames for the transfer itself follow asynchronously.
func (d *Dispatcher) fetch(raw string) {
	req, err := d.parser.Parse(raw)
	if err != nil {
		d.log.Warn("fetch rejected", "error", err)
		d.err()
		return
	}
	req.Timeout = time.Duration(d.timeoutSeconds) * time.Second
	d.track.Clean(historyRetention)

	// Fail fast while the slot is busy, before any upload collection
	if d.exec.Status() != core.StatusIdle {
		d.log.Warn("fetch rejected", "id", req.ID, "error", core.ErrBusy)
		d.err()
		return
	}

	if err := d.preparePaths(req); err != nil {
		d.log.Warn("fetch rejected", "id", req.ID, "error", err)
		d.err()
		return
	}

	if req.Upload.Kind == core.UploadSerial {
		data, err := d.port.Collect(req.Upload.Size, d.cfg.UploadTimeout())
		if err != nil {
			d.log.Warn("upload collection failed", "id", req.ID, "error", err)
			d.err()
			return
		}
		req.Upload.Data = data
	}

	if err := d.exec.Submit(req); err != nil {
		d.log.Warn("fetch rejected", "id", req.ID, "error", err)
		d.err()
		return
	}
	d.ok()
}

// preparePaths resolves file destinations against the storage root and
// verifies storage is usable before anything is admitted
func (d *Dispatcher) preparePaths(req *core.TransferRequest) error {
	usesFiles := req.DownloadPath != "" || req.Upload.Kind == core.UploadFile
	if !usesFiles {
		return nil
	}
	if err := d.store.Available(); err != nil {
		return err
	}
	if req.DownloadPath != "" {
		req.DownloadPath = d.store.Resolve(req.DownloadPath)
	}
	if req.Upload.Kind == core.UploadFile {
		req.Upload.Path = d.store.Resolve(req.Upload.Path)
	}
	return nil
}

func (d *Dispatcher) stop() {
	if d.exec.StopCurrent() {
		d.port.Line("+FETCHSTOP:stopped")
	} else {
		d.port.Line("+FETCHSTOP:idle")
	}
	d.ok()
}

func (d *Dispatcher) state() {
	d.port.Line("+FETCHSTATE:" + string(d.exec.Status()))
	d.ok()
}

func (d *Dispatcher) progress() {
	done, total, running := d.exec.Progress()
	if !running {
		if last := d.exec.LastResult(); last != nil {
			d.port.Line(fmt.Sprintf("+FETCHPROG:%d/%d", last.Bytes, last.Total))
			d.ok()
			return
		}
		d.err()
		return
	}
	d.port.Line(fmt.Sprintf("+FETCHPROG:%d/%d", done, total))
	d.ok()
}

// history renders one reply line per tracked transfer, oldest first. The
// URL goes last so its commas cannot shift earlier fields.
func (d *Dispatcher) history(entries []*status.TransferStatus) {
	for _, e := range entries {
		d.port.Line(fmt.Sprintf("+FETCHLOG:%s,%s,%d/%d,%s",
			e.State, e.Method, e.BytesDone, e.BytesTotal, e.URL))
	}
	d.ok()
}

func (d *Dispatcher) historyByState(arg string) {
	state, ok := parseState(strings.TrimSpace(arg))
	if !ok {
		d.err()
		return
	}
	d.history(d.track.ListByState(state))
}

func parseState(s string) (core.TransferState, bool) {
	switch state := core.TransferState(s); state {
	case core.StateQueued, core.StateRunning, core.StateCompleted,
		core.StateFailed, core.StateCanceled:
		return state, true
	}
	return "", false
}

func (d *Dispatcher) statistics() {
	s := d.stats.Snapshot()
	d.port.Line(fmt.Sprintf("+FETCHSTAT:started=%d,completed=%d,failed=%d,bytes=%d",
		s.Started, s.Completed, s.Failed, s.Bytes))
	d.ok()
}

func (d *Dispatcher) setTimeout(arg string) {
	seconds, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		d.err()
		return
	}
	clamped, ok := config.ClampTimeout(seconds)
	if !ok {
		d.log.Warn("timeout out of range", "seconds", seconds)
		d.err()
		return
	}
	d.timeoutSeconds = clamped
	d.ok()
}

func (d *Dispatcher) ok() {
	if err := d.port.Line("OK"); err != nil {
		d.log.Error("reply write failed", "error", err)
	}
}

func (d *Dispatcher) err() {
	if err := d.port.Line("ERROR"); err != nil {
		d.log.Error("reply write failed", "error", err)
	}
}
