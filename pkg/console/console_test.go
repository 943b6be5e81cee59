package console

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/core"
)

func TestFrames(t *testing.T) {
	tests := []struct {
		name string
		emit func(p *Port) error
		want string
	}{
		{
			name: "length known",
			emit: func(p *Port) error { return p.AnnounceLength(10000) },
			want: "+LEN:10000\r\n",
		},
		{
			name: "length unknown",
			emit: func(p *Port) error { return p.AnnounceLength(-1) },
			want: "+LEN:-1\r\n",
		},
		{
			name: "any negative length announces as -1",
			emit: func(p *Port) error { return p.AnnounceLength(-42) },
			want: "+LEN:-1\r\n",
		},
		{
			name: "chunk",
			emit: func(p *Port) error { return p.Chunk([]byte("hello")) },
			want: "+POST:5,hello",
		},
		{
			name: "range info",
			emit: func(p *Port) error { return p.RangeInfo(1024) },
			want: "+RANGE_INFO:existing_size=1024\r\n",
		},
		{
			name: "range final",
			emit: func(p *Port) error { return p.RangeFinal(2048) },
			want: "+RANGE_FINAL:file_size=2048\r\n",
		},
		{
			name: "terminal ok",
			emit: func(p *Port) error { return p.Terminal(true) },
			want: "SEND OK\r\n",
		},
		{
			name: "terminal error",
			emit: func(p *Port) error { return p.Terminal(false) },
			want: "SEND ERROR\r\n",
		},
		{
			name: "verbose",
			emit: func(p *Port) error { return p.Verbose("> GET / HTTP/1.1") },
			want: "+VERBOSE:> GET / HTTP/1.1\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := NewPort(nil, &buf)
			if err := tt.emit(p); err != nil {
				t.Fatalf("emit: %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadLine(t *testing.T) {
	var out bytes.Buffer
	p := NewPort(strings.NewReader("AT\r\nAT+FETCHSTATE?\r\npartial"), &out)

	line, err := p.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "AT" {
		t.Errorf("got %q, want AT", line)
	}

	line, err = p.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "AT+FETCHSTATE?" {
		t.Errorf("got %q, want AT+FETCHSTATE?", line)
	}

	// Final unterminated line is returned at EOF
	line, err = p.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "partial" {
		t.Errorf("got %q, want partial", line)
	}

	if _, err = p.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReadLine_BareLF(t *testing.T) {
	var out bytes.Buffer
	p := NewPort(strings.NewReader("AT\n"), &out)

	line, err := p.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "AT" {
		t.Errorf("got %q, want AT", line)
	}
}

func TestCollect(t *testing.T) {
	var out bytes.Buffer
	p := NewPort(strings.NewReader("hello world"), &out)

	data, err := p.Collect(5, time.Second)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q, want hello", data)
	}
	if out.String() != ">" {
		t.Errorf("expected upload prompt, got %q", out.String())
	}

	// Surplus bytes stay available for the next read
	data, err = p.Collect(6, time.Second)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if string(data) != " world" {
		t.Errorf("got %q, want ' world'", data)
	}
}

func TestCollect_Zero(t *testing.T) {
	var out bytes.Buffer
	p := NewPort(strings.NewReader(""), &out)

	data, err := p.Collect(0, time.Second)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil data, got %q", data)
	}
	if out.Len() != 0 {
		t.Errorf("zero-length collection must not prompt, got %q", out.String())
	}
}

func TestCollect_Timeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	p := NewPort(r, &out)

	_, err := p.Collect(10, 20*time.Millisecond)
	if !errors.Is(err, core.ErrUploadTimeout) {
		t.Errorf("expected upload timeout, got %v", err)
	}
}

func TestCollect_TimeoutResetsOnArrival(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	var out bytes.Buffer
	p := NewPort(r, &out)

	go func() {
		for i := 0; i < 4; i++ {
			time.Sleep(10 * time.Millisecond)
			w.Write([]byte("ab"))
		}
	}()

	// Each 2-byte arrival lands inside the 30ms window even though the
	// whole collection takes longer than one window
	data, err := p.Collect(8, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if string(data) != "abababab" {
		t.Errorf("got %q", data)
	}
}
