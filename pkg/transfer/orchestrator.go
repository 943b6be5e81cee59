// Package transfer implements the per-method request orchestration: each
// orchestrator configures a request against the HTTP client, wires the
// response into the dual-buffer streamer, and performs method-specific
// pre/post steps. Every executed transfer ends with exactly one terminal
// frame on the console.
package transfer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/hollowaylabs/atfetch/pkg/config"
	"github.com/hollowaylabs/atfetch/pkg/console"
	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/sink"
	"github.com/hollowaylabs/atfetch/pkg/storage"
	"github.com/hollowaylabs/atfetch/pkg/stream"
)

// Orchestrator executes transfers against the shared HTTP client and the
// console port. One instance serves the whole process; per-transfer state
// lives in the stream.Context handed to Execute.
type Orchestrator struct {
	cfg    *config.Config
	client *Client
	port   *console.Port
	store  *storage.Checker
	log    *slog.Logger
}

// NewOrchestrator wires the orchestrator to its collaborators
func NewOrchestrator(cfg *config.Config, client *Client, port *console.Port, store *storage.Checker, log *slog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, client: client, port: port, store: store, log: log}
}

// Execute runs one transfer to completion and emits the terminal frame.
// The returned error carries the failure taxonomy; nothing is retried here.
func (o *Orchestrator) Execute(tc *stream.Context, req *core.TransferRequest) error {
	var err error
	switch req.Method {
	case core.MethodGet:
		err = o.get(tc, req)
	case core.MethodPost:
		err = o.post(tc, req)
	case core.MethodHead:
		err = o.head(tc, req)
	default:
		err = core.Failuref(core.KindSetup, "unsupported method %q", req.Method)
	}

	if termErr := o.port.Terminal(err == nil); termErr != nil {
		o.log.Error("terminal frame write failed", "id", req.ID, "error", termErr)
	}
	if err != nil {
		o.log.Warn("transfer failed", "id", req.ID, "method", req.Method,
			"url", req.URL, "kind", core.KindOf(err), "error", err)
	} else {
		done, total := tc.Progress()
		o.log.Info("transfer completed", "id", req.ID, "method", req.Method,
			"url", req.URL, "bytes", done, "total", total)
	}
	return err
}

// buildRequest assembles the HTTP request from the validated descriptor
func (o *Orchestrator) buildRequest(ctx context.Context, req *core.TransferRequest, body io.Reader, bodyLen int64) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, body)
	if err != nil {
		return nil, core.Failure(core.KindSetup, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("User-Agent", o.cfg.Transfer.UserAgent)

	for _, h := range req.Headers {
		name, value, ok := splitHeader(h)
		if !ok {
			continue
		}
		httpReq.Header.Set(name, value)
	}
	if req.Method == core.MethodGet && req.IsRange() {
		httpReq.Header.Set("Range", "bytes="+req.Range)
	}
	if req.Method == core.MethodPost {
		httpReq.ContentLength = bodyLen
	}
	return httpReq, nil
}

// openSink selects the destination for body bytes. For range continuations
// to a file, the pre-existing size is returned for the range bookkeeping.
func (o *Orchestrator) openSink(req *core.TransferRequest) (s core.Sink, existing int64, rangeFile bool, err error) {
	if req.SerialDestination() {
		return sink.NewSerial(o.port), 0, false, nil
	}

	if err := o.store.EnsureWritable(req.DownloadPath); err != nil {
		return nil, 0, false, core.Failure(core.KindSetup, err)
	}
	if req.IsRange() {
		fs, size, err := sink.AppendFile(req.DownloadPath, o.cfg.Stream.SyncThreshold)
		if err != nil {
			return nil, 0, false, core.Failure(core.KindSetup, err)
		}
		return fs, size, true, nil
	}
	fs, err := sink.CreateFile(req.DownloadPath, o.cfg.Stream.SyncThreshold)
	if err != nil {
		return nil, 0, false, core.Failure(core.KindSetup, err)
	}
	return fs, 0, false, nil
}

// classifyTransport subdivides transport failures for diagnostics. The
// subdivision feeds logs and counters; console consumers only see the
// terminal frame.
func classifyTransport(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) {
		return "tls"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "connect"
	}
	return "transport"
}

// transportFailure wraps a client error with its diagnostic subdivision
func (o *Orchestrator) transportFailure(req *core.TransferRequest, err error) error {
	cause := classifyTransport(err)
	o.log.Error("transport failure", "id", req.ID, "url", req.URL, "cause", cause, "error", err)
	return core.Failure(core.KindTransport, fmt.Errorf("%s: %w", cause, err))
}

// traceRequest emits +VERBOSE lines describing the outgoing request
func (o *Orchestrator) traceRequest(req *core.TransferRequest, httpReq *http.Request) {
	if !req.Verbose {
		return
	}
	o.port.Verbose(fmt.Sprintf("> %s %s HTTP/1.1", httpReq.Method, httpReq.URL.RequestURI()))
	o.port.Verbose("> Host: " + httpReq.URL.Host)
	for _, name := range sortedKeys(httpReq.Header) {
		for _, v := range httpReq.Header[name] {
			o.port.Verbose("> " + name + ": " + v)
		}
	}
}

// traceResponse emits +VERBOSE lines describing the response status and headers
func (o *Orchestrator) traceResponse(req *core.TransferRequest, resp *http.Response) {
	if !req.Verbose {
		return
	}
	o.port.Verbose("< " + resp.Proto + " " + resp.Status)
	for _, name := range sortedKeys(resp.Header) {
		for _, v := range resp.Header[name] {
			o.port.Verbose("< " + name + ": " + v)
		}
	}
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func httpStatusFailure(resp *http.Response) error {
	return core.Failuref(core.KindHTTPStatus, "http status %s", strings.TrimSpace(resp.Status))
}
