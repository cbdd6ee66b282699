// Package connection tracks whether the portal can reach its backend.
//
// The Monitor folds three inputs into a single status: the network
// online/offline signal from a Probe, the remote store's readiness, and
// error/recovery reports from the sync engine.
package connection

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dsiportal/placement-sync/internal/remote"
)

// Status is the externally visible connection state.
type Status string

const (
	// StatusConnecting means the network is up but the backend is not ready yet
	StatusConnecting Status = "connecting"
	// StatusConnected means the backend is ready and syncing
	StatusConnected Status = "connected"
	// StatusOffline means the network is down
	StatusOffline Status = "offline"
	// StatusSyncError means the backend is ready but the last sync operation failed
	StatusSyncError Status = "sync-error"
)

// Listener observes status transitions.
type Listener func(previous, current Status)

// Monitor derives the connection status. The zero value is not usable; use
// NewMonitor.
type Monitor struct {
	mu         sync.Mutex
	status     Status
	online     bool
	storeReady bool
	lastErr    error
	listeners  map[int]Listener
	nextID     int
}

// NewMonitor returns a monitor that assumes the network is online and the
// store is not ready.
func NewMonitor() *Monitor {
	return &Monitor{
		status:    StatusConnecting,
		online:    true,
		listeners: make(map[int]Listener),
	}
}

// Status returns the current status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Online reports the last network signal.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// LastError returns the error behind StatusSyncError, if any.
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// OnChange registers l and returns a function that removes it. Listeners run
// on the goroutine that caused the transition, outside the monitor's lock.
func (m *Monitor) OnChange(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// SetOnline records the network signal.
func (m *Monitor) SetOnline(online bool) {
	m.update(func() { m.online = online })
}

// SetStoreReady records backend readiness.
func (m *Monitor) SetStoreReady(ready bool) {
	m.update(func() { m.storeReady = ready })
}

// ReportError records a failed sync operation.
func (m *Monitor) ReportError(err error) {
	if err == nil {
		return
	}
	m.update(func() { m.lastErr = err })
}

// ReportRecovered clears a previously reported error.
func (m *Monitor) ReportRecovered() {
	m.update(func() { m.lastErr = nil })
}

// WatchStore marks the store ready once its ready channel closes. It returns
// when that happens or ctx is done.
func (m *Monitor) WatchStore(ctx context.Context, store remote.Store) {
	select {
	case <-store.Ready():
		m.SetStoreReady(true)
	case <-ctx.Done():
	}
}

// Run feeds probe events into the monitor until ctx is done.
func (m *Monitor) Run(ctx context.Context, probe Probe) error {
	return probe.Run(ctx, m.SetOnline)
}

func (m *Monitor) update(fn func()) {
	m.mu.Lock()
	fn()
	prev := m.status
	cur := m.deriveLocked()
	m.status = cur
	var listeners []Listener
	if prev != cur {
		listeners = make([]Listener, 0, len(m.listeners))
		for _, l := range m.listeners {
			listeners = append(listeners, l)
		}
	}
	m.mu.Unlock()

	if prev == cur {
		return
	}
	slog.Info("Connection status changed", "previous", prev, "current", cur)
	for _, l := range listeners {
		l(prev, cur)
	}
}

func (m *Monitor) deriveLocked() Status {
	switch {
	case !m.online:
		return StatusOffline
	case !m.storeReady:
		return StatusConnecting
	case m.lastErr != nil:
		return StatusSyncError
	default:
		return StatusConnected
	}
}
