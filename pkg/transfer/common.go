package transfer

import (
	"context"
	"io"
	"os"

	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/stream"
)

// executeBody is the shared download path for GET and POST: resolve the
// expected length, announce it, open the destination sink and stream the
// response body through the dual buffers. body carries the request payload
// for POST and is nil for GET.
func (o *Orchestrator) executeBody(tc *stream.Context, req *core.TransferRequest, body io.Reader, bodyLen int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), tc.Timeout()*totalTimeoutFactor)
	defer cancel()

	// The length frame is emitted unconditionally, -1 when the probe could
	// not resolve a size, so consumers always see the announcement before
	// any body byte or the terminal frame.
	length, resolved := o.resolveLength(ctx, req)
	if err := o.port.AnnounceLength(length); err != nil {
		return core.Failure(core.KindSinkWrite, err)
	}
	if resolved {
		tc.SetTotal(length)
	}
	if !tc.Running() {
		return core.Failure(core.KindCancelled, core.ErrCancelled)
	}

	sk, existing, rangeFile, err := o.openSink(req)
	if err != nil {
		return err
	}
	st := stream.New(sk, tc, o.cfg.Stream.BufferSize, req.SerialDestination())
	st.MarkAnnounced()
	if rangeFile {
		if err := o.port.RangeInfo(existing); err != nil {
			st.Abort()
			return core.Failure(core.KindSinkWrite, err)
		}
	}

	if err := o.streamResponse(ctx, tc, req, st, body, bodyLen); err != nil {
		st.Abort()
		return err
	}
	if err := st.Finalize(); err != nil {
		return err
	}

	if rangeFile {
		info, statErr := os.Stat(req.DownloadPath)
		if statErr != nil {
			return core.Failure(core.KindSinkWrite, statErr)
		}
		if err := o.port.RangeFinal(info.Size()); err != nil {
			return core.Failure(core.KindSinkWrite, err)
		}
	}
	return nil
}

// streamResponse performs the request and copies the response body into the
// streamer. The inactivity watchdog cancels the request context when no
// bytes arrive within the transfer timeout; cancellation via the stream
// context is checked between reads.
func (o *Orchestrator) streamResponse(ctx context.Context, tc *stream.Context, req *core.TransferRequest, st *stream.Streamer, body io.Reader, bodyLen int64) error {
	httpReq, err := o.buildRequest(ctx, req, body, bodyLen)
	if err != nil {
		return err
	}
	o.traceRequest(req, httpReq)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wd := newWatchdog(tc.Timeout(), cancel)
	defer wd.Stop()

	resp, err := o.client.HTTPClient().Do(httpReq.WithContext(reqCtx))
	if err != nil {
		if !tc.Running() {
			return core.Failure(core.KindCancelled, core.ErrCancelled)
		}
		return o.transportFailure(req, err)
	}
	defer resp.Body.Close()
	o.traceResponse(req, resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpStatusFailure(resp)
	}
	if _, total := tc.Progress(); total < 0 && resp.ContentLength >= 0 {
		tc.SetTotal(resp.ContentLength)
	}

	chunk := make([]byte, o.cfg.Stream.BufferSize)
	for {
		if !tc.Running() {
			return core.Failure(core.KindCancelled, core.ErrCancelled)
		}
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			wd.Reset()
			if werr := st.Write(chunk[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if !tc.Running() {
				return core.Failure(core.KindCancelled, core.ErrCancelled)
			}
			return o.transportFailure(req, rerr)
		}
	}
}
