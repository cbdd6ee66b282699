// Package remote provides the realtime document store the portal mirrors.
//
// A Store holds whole JSON documents addressed by path. Writes replace the
// document, and subscribers receive the entire current document on every
// change rather than a diff.
package remote

import (
	"context"
	"errors"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

var (
	// ErrNotFound is returned by Read when no document exists at the path.
	ErrNotFound = errors.New("document not found")
	// ErrUnavailable is returned when the backend cannot be reached or is not
	// ready yet.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrPermissionDenied is returned when the backend rejects a write.
	ErrPermissionDenied = errors.New("permission denied")
)

// Snapshot is one delivery of a subscribed document.
type Snapshot struct {
	// Data is the raw JSON document. It is nil when Exists is false.
	Data []byte
	// Exists is false when the document was deleted or never written.
	Exists bool
}

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is a single-document realtime key-value backend.
type Store interface {
	// Ready is closed once the backend can serve requests. Calls made before
	// that may fail with ErrUnavailable.
	Ready() <-chan struct{}

	// Read returns the document at path or ErrNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write replaces the document at path.
	Write(ctx context.Context, path string, data []byte) error

	// Subscribe delivers the current document at path right away and then
	// again after every change. onError receives delivery failures; the
	// subscription stays registered after an error.
	Subscribe(ctx context.Context, path string, onChange func(Snapshot), onError func(error)) (Unsubscribe, error)

	// Close releases the backend's resources and ends all subscriptions.
	Close() error
}

// closedReady returns an already closed ready channel.
func closedReady() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// IsReady reports whether the store's ready channel is already closed.
func IsReady(s Store) bool {
	select {
	case <-s.Ready():
		return true
	default:
		return false
	}
}
