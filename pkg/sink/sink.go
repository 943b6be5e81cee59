// Package sink provides the two destination behaviors for flushed stream
// buffers: framed chunks on the serial console, or sequential file writes
// with deferred durability.
package sink

import (
	"fmt"
	"os"
	"runtime"

	"github.com/hollowaylabs/atfetch/pkg/console"
)

// Serial emits one framed chunk per flushed buffer on the console port
type Serial struct {
	port *console.Port
}

// NewSerial creates a serial sink over the shared console port
func NewSerial(port *console.Port) *Serial {
	return &Serial{port: port}
}

// Flush writes `+POST:<n>,` followed by the raw bytes, then yields briefly
// so other console producers are not starved between chunks
func (s *Serial) Flush(p []byte) error {
	if err := s.port.Chunk(p); err != nil {
		return err
	}
	runtime.Gosched()
	return nil
}

// Close is a no-op; the console outlives the transfer
func (s *Serial) Close() error {
	return nil
}

// File writes raw bytes sequentially. Durability is deferred: the file is
// synced only after syncThreshold accumulated bytes, bounding write latency,
// with an unconditional final sync on Close.
type File struct {
	f             *os.File
	pending       int64
	syncThreshold int64
}

// CreateFile opens path truncate-on-create for an ordinary download
func CreateFile(path string, syncThreshold int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &File{f: f, syncThreshold: syncThreshold}, nil
}

// AppendFile opens path in append mode for a range continuation and returns
// the pre-existing size alongside the sink
func AppendFile(path string, syncThreshold int64) (*File, int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s for append: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return &File{f: f, syncThreshold: syncThreshold}, info.Size(), nil
}

// Flush writes one buffer and syncs when the deferred threshold is reached
func (s *File) Flush(p []byte) error {
	if _, err := s.f.Write(p); err != nil {
		return fmt.Errorf("write %s: %w", s.f.Name(), err)
	}
	s.pending += int64(len(p))
	if s.pending >= s.syncThreshold {
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", s.f.Name(), err)
		}
		s.pending = 0
	}
	return nil
}

// Close forces the final sync and releases the file
func (s *File) Close() error {
	syncErr := s.f.Sync()
	closeErr := s.f.Close()
	if syncErr != nil {
		return fmt.Errorf("final sync %s: %w", s.f.Name(), syncErr)
	}
	return closeErr
}
