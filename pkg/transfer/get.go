package transfer

import (
	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/stream"
)

// get downloads the resource body to the configured destination. Range
// continuations append to an existing file and bracket the body with the
// range bookkeeping frames.
func (o *Orchestrator) get(tc *stream.Context, req *core.TransferRequest) error {
	return o.executeBody(tc, req, nil, 0)
}
