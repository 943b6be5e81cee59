package core

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a transfer is already pending or executing
	ErrBusy = errors.New("a transfer is already pending or executing")

	// ErrCancelled is returned when a transfer was stopped cooperatively
	ErrCancelled = errors.New("transfer cancelled")

	// ErrLengthNotAnnounced is returned when body bytes reach a serial
	// destination before a length frame was emitted
	ErrLengthNotAnnounced = errors.New("body data before length announcement")

	// ErrUploadTimeout is returned when serial upload collection stalls
	ErrUploadTimeout = errors.New("serial upload timed out")
)

// Kind classifies a transfer failure for diagnostics and counters
type Kind string

const (
	KindAdmission     Kind = "admission_rejected"
	KindSetup         Kind = "setup_failure"
	KindLengthUnknown Kind = "length_unknown_on_serial"
	KindTransport     Kind = "transport_failure"
	KindHTTPStatus    Kind = "http_status_failure"
	KindSinkWrite     Kind = "sink_write_failure"
	KindUploadTimeout Kind = "upload_timeout"
	KindCancelled     Kind = "cancelled"
)

// TransferError wraps a failure with its taxonomy kind
type TransferError struct {
	Kind Kind
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ExitCode maps the failure kind to a process exit code
func (e *TransferError) ExitCode() int {
	if e.Kind == KindAdmission {
		return ExitBusy
	}
	return ExitTransferFailed
}

// Failure builds a TransferError of the given kind
func Failure(kind Kind, err error) *TransferError {
	return &TransferError{Kind: kind, Err: err}
}

// Failuref builds a TransferError from a format string
func Failuref(kind Kind, format string, args ...interface{}) *TransferError {
	return &TransferError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from an error chain.
// Unclassified errors report as transport failures.
func KindOf(err error) Kind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrBusy):
		return KindAdmission
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrLengthNotAnnounced):
		return KindLengthUnknown
	case errors.Is(err, ErrUploadTimeout):
		return KindUploadTimeout
	}
	return KindTransport
}
