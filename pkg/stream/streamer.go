// Package stream implements the dual-buffer streaming core: response bytes
// accumulate in one of two fixed-size buffers while a full buffer is handed
// to the sink, bounding resident memory regardless of transfer size.
package stream

import (
	"fmt"

	"github.com/hollowaylabs/atfetch/pkg/core"
)

const bufferCount = 2

// Streamer moves producer bytes into ping-pong buffers and flushes full
// buffers to the sink. The swap happens synchronously inside Write, so the
// producer never observes more than two buffers of resident data. Not safe
// for concurrent writers; there is exactly one producer per transfer.
type Streamer struct {
	bufs   [bufferCount][]byte
	sizes  [bufferCount]int
	active int

	sink core.Sink
	ctx  *Context

	// strictAnnounce requires a length frame before any body byte may
	// reach the sink; set for serial destinations only
	strictAnnounce bool
	announced      bool

	streamed int64
	closed   bool
}

// New creates a streamer over the given sink with two bufferSize-byte buffers
func New(sink core.Sink, ctx *Context, bufferSize int, strictAnnounce bool) *Streamer {
	s := &Streamer{sink: sink, ctx: ctx, strictAnnounce: strictAnnounce}
	for i := range s.bufs {
		s.bufs[i] = make([]byte, bufferSize)
	}
	return s
}

// MarkAnnounced records that the length frame has been emitted, satisfying
// the framing precondition for serial destinations
func (s *Streamer) MarkAnnounced() {
	s.announced = true
}

// Write appends producer bytes to the active buffer, flushing and swapping
// whenever it fills. Re-checks cancellation on entry; the in-flight chunk is
// lost on cancel but previously flushed bytes remain valid on the sink.
func (s *Streamer) Write(p []byte) error {
	if !s.ctx.Running() {
		return core.ErrCancelled
	}
	if s.strictAnnounce && !s.announced {
		return core.ErrLengthNotAnnounced
	}

	written := 0
	for written < len(p) {
		buf := s.bufs[s.active]
		size := s.sizes[s.active]
		n := copy(buf[size:], p[written:])
		s.sizes[s.active] = size + n
		written += n
		s.ctx.AddTransferred(int64(n))

		if s.sizes[s.active] == len(buf) {
			if err := s.flushActive(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flushActive hands the full active buffer to the sink and swaps to the
// other buffer as the new fill target
func (s *Streamer) flushActive() error {
	size := s.sizes[s.active]
	if size == 0 {
		return nil
	}
	if err := s.sink.Flush(s.bufs[s.active][:size]); err != nil {
		return core.Failure(core.KindSinkWrite, err)
	}
	s.streamed += int64(size)

	s.active = (s.active + 1) % bufferCount
	s.sizes[s.active] = 0
	return nil
}

// Finalize flushes any partially filled buffer and closes the sink.
// Idempotent; the first error wins.
func (s *Streamer) Finalize() error {
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.flushActive()
	closeErr := s.sink.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return core.Failure(core.KindSinkWrite, fmt.Errorf("close sink: %w", closeErr))
	}
	return nil
}

// Abort closes the sink without flushing the partial buffer. Used on the
// failure path so an in-flight chunk is dropped rather than emitted after
// an error; bytes already flushed remain valid on the sink. Idempotent.
func (s *Streamer) Abort() {
	if s.closed {
		return
	}
	s.closed = true
	s.sink.Close()
}

// BytesStreamed returns the byte count successfully handed to the sink
func (s *Streamer) BytesStreamed() int64 {
	return s.streamed
}
