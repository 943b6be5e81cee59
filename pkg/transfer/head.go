package transfer

import (
	"context"
	"net/http"
	"strings"

	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/sink"
	"github.com/hollowaylabs/atfetch/pkg/stream"
)

// head fetches only the response headers and streams the rendered header
// block to the serial console as the transfer body. Unlike GET and POST the
// length is known only after the response arrives, so the announcement
// carries the block size; when the transfer fails before any announcement a
// -1 is emitted so consumers still see the full frame sequence, and a
// transfer that already announced never announces again.
func (o *Orchestrator) head(tc *stream.Context, req *core.TransferRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), tc.Timeout()*totalTimeoutFactor)
	defer cancel()

	announced, err := o.headInner(ctx, tc, req)
	if err != nil && !announced {
		if aerr := o.port.AnnounceLength(-1); aerr != nil {
			o.log.Error("length frame write failed", "id", req.ID, "error", aerr)
		}
	}
	return err
}

// headInner reports whether the length frame was already emitted so that a
// late failure does not produce a second announcement for the transfer.
func (o *Orchestrator) headInner(ctx context.Context, tc *stream.Context, req *core.TransferRequest) (bool, error) {
	httpReq, err := o.buildRequest(ctx, req, nil, 0)
	if err != nil {
		return false, err
	}
	o.traceRequest(req, httpReq)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wd := newWatchdog(tc.Timeout(), cancel)
	defer wd.Stop()

	resp, err := o.client.HTTPClient().Do(httpReq.WithContext(reqCtx))
	if err != nil {
		if !tc.Running() {
			return false, core.Failure(core.KindCancelled, core.ErrCancelled)
		}
		return false, o.transportFailure(req, err)
	}
	resp.Body.Close()
	o.traceResponse(req, resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, httpStatusFailure(resp)
	}

	block := renderHeaderBlock(resp)
	if err := o.port.AnnounceLength(int64(len(block))); err != nil {
		return true, core.Failure(core.KindSinkWrite, err)
	}
	tc.SetTotal(int64(len(block)))

	st := stream.New(sink.NewSerial(o.port), tc, o.cfg.Stream.BufferSize, true)
	st.MarkAnnounced()
	if err := st.Write(block); err != nil {
		st.Abort()
		return true, err
	}
	return true, st.Finalize()
}

// renderHeaderBlock flattens response headers into CRLF-terminated
// "Name: value" lines. The status line is not part of the block; keys are
// sorted so the block is stable across runs.
func renderHeaderBlock(resp *http.Response) []byte {
	var b strings.Builder
	for _, name := range sortedKeys(resp.Header) {
		for _, v := range resp.Header[name] {
			b.WriteString(name + ": " + v + "\r\n")
		}
	}
	return []byte(b.String())
}
