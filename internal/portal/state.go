package portal

import (
	"errors"
	"sync"
)

var (
	// ErrDuplicate is returned when an entity collides with an existing one on
	// a unique key.
	ErrDuplicate = errors.New("duplicate entity")
	// ErrNotFound is returned when a lookup by id or key finds nothing.
	ErrNotFound = errors.New("entity not found")
	// ErrInvalid is returned for entities missing required fields.
	ErrInvalid = errors.New("invalid entity")
	// ErrInvalidShortlist is returned for shortlists without a header row.
	ErrInvalidShortlist = errors.New("invalid shortlist")
)

// State is the process-wide container for portal data. Every read goes
// through View and every mutation through Update so a snapshot replacement
// is never observed half applied.
type State struct {
	mu   sync.RWMutex
	data Data
}

// NewState returns a State with empty collections and default criteria.
func NewState() *State {
	s := &State{}
	s.data.Reset()
	return s
}

// View runs fn with shared access to the data. fn must not retain d or any
// slice reachable from it.
func (s *State) View(fn func(d *Data)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.data)
}

// Update runs fn with exclusive access to the data and returns fn's error.
// Changes made before an error are kept.
func (s *State) Update(fn func(d *Data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.data)
}

// Snapshot returns a deep copy of the data.
func (s *State) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.clone()
}

// Document returns the persisted form of the current data.
func (s *State) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Document()
}
