package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/config"
	"github.com/hollowaylabs/atfetch/pkg/console"
	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/executor"
	"github.com/hollowaylabs/atfetch/pkg/stats"
	"github.com/hollowaylabs/atfetch/pkg/status"
	"github.com/hollowaylabs/atfetch/pkg/storage"
	"github.com/hollowaylabs/atfetch/pkg/stream"
)

// captureRunner records submitted requests and succeeds immediately
type captureRunner struct {
	mu   sync.Mutex
	reqs []*core.TransferRequest
}

func (r *captureRunner) Execute(tc *stream.Context, req *core.TransferRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return nil
}

func (r *captureRunner) all() []*core.TransferRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*core.TransferRequest(nil), r.reqs...)
}

// runScript feeds command lines through a dispatcher backed by a capturing
// runner and returns the console output after everything settles
func runScript(t *testing.T, script string) (string, *captureRunner, string) {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewChecker(root)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	out := &bytes.Buffer{}
	port := console.NewPort(strings.NewReader(script), out)

	runner := &captureRunner{}
	collector := stats.New()
	tracker := status.New()
	exec := executor.New(runner, tracker, collector, log)
	exec.Start()

	d := New(cfg, port, exec, tracker, store, collector, log)
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Let anything admitted during the script finish before tearing down
	deadline := time.Now().Add(2 * time.Second)
	for exec.Status() != core.StatusIdle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exec.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	return out.String(), runner, root
}

// failingRunner consumes a few bytes and then fails without ever learning
// the total length
type failingRunner struct{}

func (failingRunner) Execute(tc *stream.Context, req *core.TransferRequest) error {
	tc.AddTransferred(5)
	return core.Failure(core.KindTransport, errors.New("dial refused"))
}

// newDispatcher builds a dispatcher around a write-only console so tests can
// drive dispatch directly and inspect replies between commands
func newDispatcher(t *testing.T, runner executor.Runner) (*Dispatcher, *bytes.Buffer, *executor.Executor) {
	t.Helper()

	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewChecker(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}

	out := &bytes.Buffer{}
	port := console.NewPort(nil, out)
	collector := stats.New()
	tracker := status.New()
	exec := executor.New(runner, tracker, collector, log)
	exec.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := exec.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return New(cfg, port, exec, tracker, store, collector, log), out, exec
}

func waitIdle(t *testing.T, exec *executor.Executor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for exec.Status() != core.StatusIdle {
		if time.Now().After(deadline) {
			t.Fatal("executor never drained")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func replies(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\r\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestDispatch_Basic(t *testing.T) {
	out, _, _ := runScript(t, "AT\r\nNOPE\r\nAT+FETCHSTATE?\r\n")

	got := replies(out)
	want := []string{"OK", "ERROR", "+FETCHSTATE:idle", "OK"}
	if len(got) != len(want) {
		t.Fatalf("replies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatch_Timeout(t *testing.T) {
	out, _, _ := runScript(t, "AT+FETCHTIME?\r\nAT+FETCHTIME=60\r\nAT+FETCHTIME?\r\nAT+FETCHTIME=500\r\nAT+FETCHTIME=abc\r\n")

	got := replies(out)
	want := []string{"+FETCHTIME:30", "OK", "OK", "+FETCHTIME:60", "OK", "ERROR", "ERROR"}
	if len(got) != len(want) {
		t.Fatalf("replies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatch_StopIdle(t *testing.T) {
	out, _, _ := runScript(t, "AT+FETCHSTOP\r\n")

	got := replies(out)
	want := []string{"+FETCHSTOP:idle", "OK"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("replies = %v, want %v", got, want)
	}
}

func TestDispatch_Statistics(t *testing.T) {
	out, _, _ := runScript(t, "AT+FETCHSTAT?\r\n")

	got := replies(out)
	if len(got) != 2 || got[0] != "+FETCHSTAT:started=0,completed=0,failed=0,bytes=0" || got[1] != "OK" {
		t.Errorf("replies = %v", got)
	}
}

func TestFetch_Submitted(t *testing.T) {
	out, runner, _ := runScript(t, "AT+FETCH=\"GET\",\"https://example.com/file\"\r\n")

	if !strings.Contains(out, "OK\r\n") {
		t.Errorf("expected OK, got %q", out)
	}
	reqs := runner.all()
	if len(reqs) != 1 {
		t.Fatalf("executed %d requests, want 1", len(reqs))
	}
	if reqs[0].Method != core.MethodGet || reqs[0].URL != "https://example.com/file" {
		t.Errorf("request = %+v", reqs[0])
	}
}

func TestFetch_SessionTimeoutApplied(t *testing.T) {
	_, runner, _ := runScript(t, "AT+FETCHTIME=90\r\nAT+FETCH=\"GET\",\"https://example.com/f\"\r\n")

	reqs := runner.all()
	if len(reqs) != 1 {
		t.Fatalf("executed %d requests, want 1", len(reqs))
	}
	if reqs[0].Timeout != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", reqs[0].Timeout)
	}
}

func TestFetch_BadArguments(t *testing.T) {
	out, runner, _ := runScript(t, "AT+FETCH=\"DELETE\",\"https://example.com\"\r\n")

	if !strings.Contains(out, "ERROR\r\n") {
		t.Errorf("expected ERROR, got %q", out)
	}
	if len(runner.all()) != 0 {
		t.Error("rejected request must not execute")
	}
}

func TestFetch_ResolvesPathsAgainstRoot(t *testing.T) {
	_, runner, root := runScript(t, "AT+FETCH=\"GET\",\"https://example.com/f\",\"-dd\",\"sub/out.bin\"\r\n")

	reqs := runner.all()
	if len(reqs) != 1 {
		t.Fatalf("executed %d requests, want 1", len(reqs))
	}
	want := filepath.Join(root, "sub", "out.bin")
	if reqs[0].DownloadPath != want {
		t.Errorf("download path = %q, want %q", reqs[0].DownloadPath, want)
	}
}

func TestProgress_IdleReportsLastOutcome(t *testing.T) {
	d, out, exec := newDispatcher(t, failingRunner{})

	d.dispatch(`AT+FETCH="GET","https://example.com/f"`)
	waitIdle(t, exec)
	out.Reset()

	// A failed transfer with an unknown total must not read as complete
	d.dispatch("AT+FETCHPROG?")
	got := replies(out.String())
	want := []string{"+FETCHPROG:5/-1", "OK"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("replies = %v, want %v", got, want)
	}
}

func TestHistory_ListsFinishedTransfers(t *testing.T) {
	d, out, exec := newDispatcher(t, &captureRunner{})

	d.dispatch(`AT+FETCH="GET","https://example.com/f"`)
	waitIdle(t, exec)
	out.Reset()

	d.dispatch("AT+FETCHLOG?")
	got := replies(out.String())
	want := []string{"+FETCHLOG:completed,GET,0/-1,https://example.com/f", "OK"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("replies = %v, want %v", got, want)
	}
}

func TestHistory_FilterByState(t *testing.T) {
	d, out, exec := newDispatcher(t, &captureRunner{})

	d.dispatch(`AT+FETCH="GET","https://example.com/f"`)
	waitIdle(t, exec)

	out.Reset()
	d.dispatch("AT+FETCHLOG=failed")
	if got := replies(out.String()); len(got) != 1 || got[0] != "OK" {
		t.Errorf("failed filter replies = %v, want [OK]", got)
	}

	out.Reset()
	d.dispatch("AT+FETCHLOG=completed")
	if got := replies(out.String()); len(got) != 2 || !strings.HasPrefix(got[0], "+FETCHLOG:completed,") {
		t.Errorf("completed filter replies = %v", got)
	}

	out.Reset()
	d.dispatch("AT+FETCHLOG=bogus")
	if got := replies(out.String()); len(got) != 1 || got[0] != "ERROR" {
		t.Errorf("bogus filter replies = %v, want [ERROR]", got)
	}
}

func TestFetch_SerialUploadCollected(t *testing.T) {
	script := "AT+FETCH=\"POST\",\"https://example.com/api\",\"-du\",\"5\"\r\nhello"
	out, runner, _ := runScript(t, script)

	if !strings.Contains(out, ">") {
		t.Errorf("expected upload prompt, got %q", out)
	}
	reqs := runner.all()
	if len(reqs) != 1 {
		t.Fatalf("executed %d requests, want 1", len(reqs))
	}
	if string(reqs[0].Upload.Data) != "hello" {
		t.Errorf("upload data = %q, want hello", reqs[0].Upload.Data)
	}
}
