package transfer

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/hollowaylabs/atfetch/pkg/core"
	"github.com/hollowaylabs/atfetch/pkg/stream"
)

// post uploads the request payload and streams the response body like a
// download. Serial payloads were collected by the command layer before
// execution started; file payloads stream straight from disk.
func (o *Orchestrator) post(tc *stream.Context, req *core.TransferRequest) error {
	body, bodyLen, cleanup, err := o.openUpload(req)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	return o.executeBody(tc, req, body, bodyLen)
}

// openUpload resolves the POST payload source. An empty upload yields a
// zero-length body, which is still a valid POST.
func (o *Orchestrator) openUpload(req *core.TransferRequest) (body io.Reader, bodyLen int64, cleanup func(), err error) {
	switch req.Upload.Kind {
	case core.UploadSerial:
		return bytes.NewReader(req.Upload.Data), int64(len(req.Upload.Data)), nil, nil
	case core.UploadFile:
		f, err := os.Open(req.Upload.Path)
		if err != nil {
			return nil, 0, nil, core.Failure(core.KindSetup, fmt.Errorf("open upload file: %w", err))
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, nil, core.Failure(core.KindSetup, fmt.Errorf("stat upload file: %w", err))
		}
		return f, info.Size(), func() { f.Close() }, nil
	default:
		return nil, 0, nil, nil
	}
}
