package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dsiportal/placement-sync/internal/remote"
)

// ErrorKind classifies sync failures for callers that map them to user
// messages or HTTP status codes.
type ErrorKind string

const (
	// KindUnavailable means the backend could not be reached
	KindUnavailable ErrorKind = "unavailable"
	// KindPermissionDenied means the backend rejected the operation
	KindPermissionDenied ErrorKind = "permission-denied"
	// KindNotFound means the document does not exist
	KindNotFound ErrorKind = "not-found"
	// KindTimeout means readiness or an individual call timed out
	KindTimeout ErrorKind = "timeout"
	// KindInvalidDocument means the stored document could not be decoded
	KindInvalidDocument ErrorKind = "invalid-document"
	// KindNotLoaded means a write was refused because no document is loaded
	KindNotLoaded ErrorKind = "not-loaded"
)

var (
	// ErrReadyTimeout is returned when the backend does not become ready
	// within the configured timeout.
	ErrReadyTimeout = errors.New("backend did not become ready in time")
	// ErrNotLoaded is returned by Persist while the state is not backed by a
	// loaded document, so writing it would overwrite the stored one.
	ErrNotLoaded = errors.New("document not loaded, retry required")
)

// Error represents a structured sync failure
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TelemetryKind reports the kind on failed spans
func (e *Error) TelemetryKind() string {
	return string(e.Kind)
}

// KindOf returns the kind of err, or "" when err is not a sync Error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// classify wraps a backend error for the named operation. Errors that are
// already classified are returned unchanged.
func classify(operation string, err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	kind := KindUnavailable
	switch {
	case errors.Is(err, remote.ErrPermissionDenied):
		kind = KindPermissionDenied
	case errors.Is(err, remote.ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, ErrReadyTimeout), errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}

	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf("failed to %s: %v", operation, err),
		Err:     err,
	}
}
