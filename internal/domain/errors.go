package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned when a publication's max value is below its
	// initial value. It is detected locally, before any remote call.
	ErrInvalidRange = errors.New("invalid range: max value must not be less than initial value")

	// ErrNotFound is returned when an item id is outside the assigned range.
	ErrNotFound = errors.New("not found")

	// ErrNoActiveAddress is returned when a write cannot resolve an acting address.
	ErrNoActiveAddress = errors.New("no active address")

	// ErrInvalidTransition is returned when a state would move backwards.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// FailureKind categorizes failures reported through an ErrorSink.
type FailureKind string

const (
	// KindRemoteRead marks a failed ledger read.
	KindRemoteRead FailureKind = "REMOTE_READ_FAILURE"

	// KindRemoteWrite marks a failed or rejected mutating ledger operation.
	KindRemoteWrite FailureKind = "REMOTE_WRITE_FAILURE"

	// KindContent marks a failed content-store operation.
	KindContent FailureKind = "CONTENT_FAILURE"
)

// RemoteError wraps a failure of a call to an external collaborator.
type RemoteError struct {
	Kind FailureKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewReadFailure wraps err as a RemoteReadFailure.
func NewReadFailure(op string, err error) *RemoteError {
	return &RemoteError{Kind: KindRemoteRead, Op: op, Err: err}
}

// NewWriteFailure wraps err as a RemoteWriteFailure.
func NewWriteFailure(op string, err error) *RemoteError {
	return &RemoteError{Kind: KindRemoteWrite, Op: op, Err: err}
}

// NewContentFailure wraps err as a content-store failure.
func NewContentFailure(op string, err error) *RemoteError {
	return &RemoteError{Kind: KindContent, Op: op, Err: err}
}

// IsReadFailure reports whether err is a RemoteReadFailure.
func IsReadFailure(err error) bool {
	return hasKind(err, KindRemoteRead)
}

// IsWriteFailure reports whether err is a RemoteWriteFailure.
func IsWriteFailure(err error) bool {
	return hasKind(err, KindRemoteWrite)
}

func hasKind(err error, kind FailureKind) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// HandlerError records a failed event callback. Handler failures are logged
// and isolated; they never propagate to the event source.
type HandlerError struct {
	Event EventName
	Index int
	Err   error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("HANDLER_FAILURE: %s handler #%d: %v", e.Event, e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ErrorSink receives every failure that crosses a component boundary, so
// the presentation layer decides how to show it.
type ErrorSink func(error)

// Report forwards err to the sink. Nil sinks and nil errors are ignored.
func (s ErrorSink) Report(err error) {
	if s == nil || err == nil {
		return
	}
	s(err)
}
