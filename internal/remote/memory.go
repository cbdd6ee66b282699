package remote

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Besides serving single-process
// deployments it lets tests inject the failures a real backend produces.
type MemoryStore struct {
	mu          sync.Mutex
	docs        map[string][]byte
	subs        map[string]map[int]*memorySubscription
	nextSubID   int
	writes      int
	unavailable bool
	readOnly    bool
	closed      bool

	ready     chan struct{}
	readyOnce sync.Once
}

type memorySubscription struct {
	onChange func(Snapshot)
	onError  func(error)
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithDelayedReady leaves the store not ready until MarkReady is called.
func WithDelayedReady() MemoryOption {
	return func(m *MemoryStore) {
		m.ready = make(chan struct{})
	}
}

// WithDocument seeds the document at path.
func WithDocument(path string, data []byte) MemoryOption {
	return func(m *MemoryStore) {
		m.docs[path] = append([]byte(nil), data...)
	}
}

// NewMemoryStore creates a ready, empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		docs: make(map[string][]byte),
		subs: make(map[string]map[int]*memorySubscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ready == nil {
		m.ready = make(chan struct{})
		m.MarkReady()
	}
	return m
}

// MarkReady closes the ready channel.
func (m *MemoryStore) MarkReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}

// SetUnavailable makes every call fail with ErrUnavailable while set.
func (m *MemoryStore) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = unavailable
}

// SetReadOnly makes writes fail with ErrPermissionDenied while set.
func (m *MemoryStore) SetReadOnly(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
}

// WriteCount returns the number of successful writes.
func (m *MemoryStore) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Ready implements Store.
func (m *MemoryStore) Ready() <-chan struct{} {
	return m.ready
}

func (m *MemoryStore) checkLocked() error {
	if m.closed {
		return fmt.Errorf("store closed: %w", ErrUnavailable)
	}
	if m.unavailable {
		return ErrUnavailable
	}
	select {
	case <-m.ready:
		return nil
	default:
		return fmt.Errorf("store not ready: %w", ErrUnavailable)
	}
}

// Read implements Store.
func (m *MemoryStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(); err != nil {
		return nil, err
	}
	data, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Write implements Store. Subscribers are notified synchronously after the
// store lock is released.
func (m *MemoryStore) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.checkLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.readOnly {
		m.mu.Unlock()
		return ErrPermissionDenied
	}
	m.docs[path] = append([]byte(nil), data...)
	m.writes++
	subs := m.subscribersLocked(path)
	m.mu.Unlock()

	deliver(subs, Snapshot{Data: data, Exists: true})
	return nil
}

// Delete removes the document at path and notifies subscribers, as if
// another client had deleted it.
func (m *MemoryStore) Delete(path string) {
	m.mu.Lock()
	delete(m.docs, path)
	subs := m.subscribersLocked(path)
	m.mu.Unlock()

	deliver(subs, Snapshot{})
}

// FailSubscribers delivers err to every subscriber of path.
func (m *MemoryStore) FailSubscribers(path string, err error) {
	m.mu.Lock()
	subs := m.subscribersLocked(path)
	m.mu.Unlock()

	for _, s := range subs {
		if s.onError != nil {
			s.onError(err)
		}
	}
}

// SubscriberCount returns the number of live subscriptions on path.
func (m *MemoryStore) SubscriberCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[path])
}

// Subscribe implements Store. The current document is delivered before
// Subscribe returns.
func (m *MemoryStore) Subscribe(
	ctx context.Context, path string, onChange func(Snapshot), onError func(error),
) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if err := m.checkLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	id := m.nextSubID
	m.nextSubID++
	sub := &memorySubscription{onChange: onChange, onError: onError}
	if m.subs[path] == nil {
		m.subs[path] = make(map[int]*memorySubscription)
	}
	m.subs[path][id] = sub
	current, exists := m.docs[path]
	current = append([]byte(nil), current...)
	m.mu.Unlock()

	if exists {
		onChange(Snapshot{Data: current, Exists: true})
	} else {
		onChange(Snapshot{})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[path], id)
		})
	}, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[string]map[int]*memorySubscription)
	return nil
}

func (m *MemoryStore) subscribersLocked(path string) []*memorySubscription {
	subs := make([]*memorySubscription, 0, len(m.subs[path]))
	for _, s := range m.subs[path] {
		subs = append(subs, s)
	}
	return subs
}

func deliver(subs []*memorySubscription, snap Snapshot) {
	for _, s := range subs {
		data := snap.Data
		if data != nil {
			data = append([]byte(nil), data...)
		}
		s.onChange(Snapshot{Data: data, Exists: snap.Exists})
	}
}
