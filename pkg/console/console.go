// Package console owns the byte-oriented command channel: the shared,
// mutex-protected write path all frame producers go through, and the
// single-consumer read side used for command lines and upload collection.
package console

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/core"
)

const (
	lenPrefix        = "+LEN:"
	chunkPrefix      = "+POST:"
	rangeInfoPrefix  = "+RANGE_INFO:existing_size="
	rangeFinalPrefix = "+RANGE_FINAL:file_size="
	verbosePrefix    = "+VERBOSE:"
	sendOK           = "SEND OK\r\n"
	sendError        = "SEND ERROR\r\n"
	uploadPrompt     = ">"

	readSlabSize = 512
)

// Port is the serial console attachment. The write path is shared across
// subsystems and serialized by a single lock so frames are never interleaved
// mid-frame; the read side is consumed by exactly one command loop.
type Port struct {
	mu sync.Mutex
	w  io.Writer

	data     chan []byte
	readErr  error
	leftover []byte
	once     sync.Once
	r        io.Reader
}

// NewPort wraps a byte-oriented transport. The reader may be nil for
// write-only attachments (one-shot CLI transfers).
func NewPort(r io.Reader, w io.Writer) *Port {
	return &Port{r: r, w: w, data: make(chan []byte, 4)}
}

// pump moves bytes from the transport into the read channel. Started lazily
// on first read so write-only ports never spin a goroutine.
func (p *Port) pump() {
	go func() {
		defer close(p.data)
		for {
			slab := make([]byte, readSlabSize)
			n, err := p.r.Read(slab)
			if n > 0 {
				p.data <- slab[:n]
			}
			if err != nil {
				p.readErr = err
				return
			}
		}
	}()
}

func (p *Port) startReader() error {
	if p.r == nil {
		return fmt.Errorf("console port has no reader")
	}
	p.once.Do(p.pump)
	return nil
}

// write sends raw bytes under the shared lock
func (p *Port) write(chunks ...[]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range chunks {
		if _, err := p.w.Write(c); err != nil {
			return fmt.Errorf("console write: %w", err)
		}
	}
	return nil
}

// Line writes "<s>\r\n"
func (p *Port) Line(s string) error {
	return p.write([]byte(s + "\r\n"))
}

// AnnounceLength emits the length frame. A negative value announces an
// unknown length as -1.
func (p *Port) AnnounceLength(n int64) error {
	if n < 0 {
		n = -1
	}
	return p.write([]byte(lenPrefix + strconv.FormatInt(n, 10) + "\r\n"))
}

// Chunk emits one body chunk frame: the count header immediately followed by
// exactly len(data) raw bytes, all inside one lock acquisition.
func (p *Port) Chunk(data []byte) error {
	return p.write([]byte(chunkPrefix+strconv.Itoa(len(data))+","), data)
}

// RangeInfo reports the pre-existing file size before a range continuation
func (p *Port) RangeInfo(existing int64) error {
	return p.write([]byte(rangeInfoPrefix + strconv.FormatInt(existing, 10) + "\r\n"))
}

// RangeFinal reports the file size after a range continuation
func (p *Port) RangeFinal(size int64) error {
	return p.write([]byte(rangeFinalPrefix + strconv.FormatInt(size, 10) + "\r\n"))
}

// Terminal emits the final frame of a transfer
func (p *Port) Terminal(ok bool) error {
	if ok {
		return p.write([]byte(sendOK))
	}
	return p.write([]byte(sendError))
}

// Verbose emits one diagnostic trace line
func (p *Port) Verbose(line string) error {
	return p.write([]byte(verbosePrefix + line + "\r\n"))
}

// ReadLine returns the next command line with the trailing CRLF stripped.
// Blocks until a full line arrives or the transport closes.
func (p *Port) ReadLine() (string, error) {
	if err := p.startReader(); err != nil {
		return "", err
	}
	var line []byte
	for {
		if i := bytes.IndexByte(p.leftover, '\n'); i >= 0 {
			line = append(line, p.leftover[:i]...)
			p.leftover = p.leftover[i+1:]
			return trimCR(string(line)), nil
		}
		line = append(line, p.leftover...)
		p.leftover = nil

		slab, open := <-p.data
		if !open {
			if len(line) > 0 {
				return trimCR(string(line)), nil
			}
			if p.readErr != nil && p.readErr != io.EOF {
				return "", p.readErr
			}
			return "", io.EOF
		}
		p.leftover = slab
	}
}

// Collect emits the upload prompt and reads exactly n raw bytes from the
// console, bounded by an inactivity timeout that resets on every arrival.
func (p *Port) Collect(n int64, timeout time.Duration) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := p.startReader(); err != nil {
		return nil, err
	}
	if err := p.write([]byte(uploadPrompt)); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, n)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for int64(len(buf)) < n {
		if len(p.leftover) > 0 {
			take := n - int64(len(buf))
			if take > int64(len(p.leftover)) {
				take = int64(len(p.leftover))
			}
			buf = append(buf, p.leftover[:take]...)
			p.leftover = p.leftover[take:]
			continue
		}
		select {
		case slab, open := <-p.data:
			if !open {
				return nil, fmt.Errorf("console closed during upload: %w", core.ErrUploadTimeout)
			}
			p.leftover = slab
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
		case <-timer.C:
			return nil, core.ErrUploadTimeout
		}
	}
	return buf, nil
}

func trimCR(s string) string {
	return strings.TrimRight(s, "\r\n")
}
