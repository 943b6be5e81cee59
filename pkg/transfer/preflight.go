package transfer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/core"
)

const preflightTimeout = 15 * time.Second

// resolveLength issues a metadata-only probe to learn the content length
// before any body byte is emitted. The range header is forwarded so the
// announced length matches what a ranged transfer will actually deliver.
// Returns -1 and false when the probe fails or the server omits the length.
func (o *Orchestrator) resolveLength(ctx context.Context, req *core.TransferRequest) (int64, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()

	probe, err := http.NewRequestWithContext(probeCtx, http.MethodHead, req.URL, nil)
	if err != nil {
		o.log.Warn("length probe setup failed", "url", req.URL, "error", err)
		return -1, false
	}
	probe.Header.Set("User-Agent", o.cfg.Transfer.UserAgent)
	if req.IsRange() {
		probe.Header.Set("Range", "bytes="+req.Range)
	}
	for _, h := range req.Headers {
		name, value, ok := splitHeader(h)
		if !ok {
			continue
		}
		// Content headers describe the final request's body, not the probe
		if strings.EqualFold(name, "Content-Type") || strings.EqualFold(name, "Content-Length") {
			continue
		}
		probe.Header.Set(name, value)
	}

	resp, err := o.client.HTTPClient().Do(probe)
	if err != nil {
		o.log.Warn("length probe failed", "url", req.URL, "error", err)
		return -1, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		o.log.Warn("length probe rejected", "url", req.URL, "status", resp.StatusCode)
		return -1, false
	}
	if resp.ContentLength < 0 {
		o.log.Info("length probe returned no content length", "url", req.URL)
		return -1, false
	}
	return resp.ContentLength, true
}

func splitHeader(h string) (name, value string, ok bool) {
	i := strings.Index(h, ":")
	if i <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(h[:i]), strings.TrimSpace(h[i+1:]), true
}
