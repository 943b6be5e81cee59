package core

import (
	"time"
)

// Method is an HTTP method supported by the transfer core
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
	MethodHead Method = "HEAD"
)

// Supported reports whether the method can be executed
func (m Method) Supported() bool {
	switch m {
	case MethodGet, MethodPost, MethodHead:
		return true
	}
	return false
}

// UploadKind selects where POST body data comes from
type UploadKind string

const (
	UploadNone   UploadKind = "none"   // Empty body
	UploadSerial UploadKind = "serial" // Collected from the serial console
	UploadFile   UploadKind = "file"   // Read from a local file
)

// Upload describes the body source for a POST transfer
type Upload struct {
	Kind UploadKind
	Size int64  // Declared byte count for serial uploads
	Path string // File path for file uploads
	Data []byte // Bytes collected from the console before submission
}

// TransferRequest contains all parameters for a single transfer.
// Immutable once handed to the executor.
type TransferRequest struct {
	ID           string
	Method       Method
	URL          string
	Headers      []string // "Name: value" lines, already validated
	Upload       Upload
	DownloadPath string // Empty means stream to the serial console
	Range        string // "start-end" byte range, empty means none
	Verbose      bool
	Timeout      time.Duration // Server inactivity bound
}

// SerialDestination reports whether the response body streams to the console
func (r *TransferRequest) SerialDestination() bool {
	return r.DownloadPath == ""
}

// IsRange reports whether a byte range was requested
func (r *TransferRequest) IsRange() bool {
	return r.Range != ""
}

// ExecStatus represents the executor slot state
type ExecStatus string

const (
	StatusIdle      ExecStatus = "idle"
	StatusQueued    ExecStatus = "queued"
	StatusExecuting ExecStatus = "executing"
)

// TransferState represents transfer lifecycle state in the history tracker
type TransferState string

const (
	StateQueued    TransferState = "queued"
	StateRunning   TransferState = "running"
	StateCompleted TransferState = "completed"
	StateFailed    TransferState = "failed"
	StateCanceled  TransferState = "canceled"
)
