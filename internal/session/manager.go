package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dsiportal/placement-sync/internal/config"
	"github.com/dsiportal/placement-sync/internal/portal"
)

// DefaultAdminID identifies the built-in admin, which is not part of the
// document's admin list.
const DefaultAdminID portal.StringID = "default-admin"

// StateHolder exposes the portal state the manager authenticates against.
type StateHolder interface {
	State() *portal.State
}

// Seeder fills an empty notification list after login.
type Seeder interface {
	SeedWelcome(ctx context.Context) (bool, error)
}

// Manager logs principals in and out.
type Manager struct {
	holder       StateHolder
	store        Store
	seeder       Seeder
	defaultAdmin config.AdminCredentials

	// mu serializes login, logout and restore so the stored reference
	// matches the current principal
	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithSeeder sets the post-login welcome seeder.
func WithSeeder(s Seeder) Option {
	return func(m *Manager) {
		m.seeder = s
	}
}

// WithDefaultAdmin overrides the built-in admin credentials.
func WithDefaultAdmin(c config.AdminCredentials) Option {
	return func(m *Manager) {
		m.defaultAdmin = c
	}
}

// NewManager creates a manager over holder's state persisting references
// in store.
func NewManager(holder StateHolder, store Store, opts ...Option) *Manager {
	var cfg *config.SessionConfig
	m := &Manager{
		holder:       holder,
		store:        store,
		defaultAdmin: cfg.GetDefaultAdmin(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login authenticates creds as a principal of kind. Both fields must match
// exactly. On success the principal becomes current, its reference is
// stored, and welcome notifications are seeded if there are none.
func (m *Manager) Login(ctx context.Context, kind Kind, creds Credentials) (Principal, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Principal{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var principal Principal
	found := false
	m.holder.State().View(func(d *portal.Data) {
		principal, found = m.match(d, kind, creds.Identifier, creds.Password, true)
	})
	if !found {
		slog.InfoContext(ctx, "Login rejected", "kind", string(kind), "identifier", creds.Identifier)
		return Principal{}, ErrInvalidCredentials
	}

	m.setCurrent(principal)
	if err := m.store.Save(ctx, Record{Kind: kind, Key: principal.Key()}); err != nil {
		slog.WarnContext(ctx, "Failed to persist session", "kind", string(kind), "error", err)
	}
	slog.InfoContext(ctx, "Logged in", "kind", string(kind), "key", principal.Key())

	if m.seeder != nil {
		if _, err := m.seeder.SeedWelcome(ctx); err != nil {
			slog.WarnContext(ctx, "Failed to seed welcome notifications", "error", err)
		}
	}
	return principal, nil
}

// Restore re-establishes the stored principal. A reference to a principal
// that no longer exists is cleared and reported as no session.
func (m *Manager) Restore(ctx context.Context) (Principal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok, err := m.store.Load(ctx)
	if err != nil {
		return Principal{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	if !ok {
		return Principal{}, false, nil
	}

	var principal Principal
	found := false
	if _, kindErr := ParseKind(string(rec.Kind)); kindErr == nil {
		m.holder.State().View(func(d *portal.Data) {
			principal, found = m.match(d, rec.Kind, rec.Key, "", false)
		})
	}
	if !found {
		slog.InfoContext(ctx, "Clearing stale session", "kind", string(rec.Kind), "key", rec.Key)
		m.setCurrent(Principal{})
		if err := m.store.Clear(ctx); err != nil {
			return Principal{}, false, fmt.Errorf("failed to clear stale session: %w", err)
		}
		return Principal{}, false, nil
	}

	m.setCurrent(principal)
	slog.InfoContext(ctx, "Session restored", "kind", string(rec.Kind), "key", rec.Key)
	return principal, true, nil
}

// Logout clears the current principal and the stored reference.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setCurrent(Principal{})
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	slog.InfoContext(ctx, "Logged out")
	return nil
}

// Current returns the logged-in principal.
func (m *Manager) Current() (Principal, bool) {
	var p Principal
	m.holder.State().View(func(d *portal.Data) {
		switch {
		case d.CurrentStudent != nil:
			s := *d.CurrentStudent
			p = Principal{Kind: KindStudent, Student: &s}
		case d.CurrentAdmin != nil:
			a := *d.CurrentAdmin
			p = Principal{Kind: KindAdmin, Admin: &a}
		}
	})
	return p, p.Kind != ""
}

// match scans d for the principal of kind keyed by key. The password is
// compared only when checkPassword is set.
func (m *Manager) match(d *portal.Data, kind Kind, key, password string, checkPassword bool) (Principal, bool) {
	switch kind {
	case KindStudent:
		for _, s := range d.Students {
			if s.USN == key && (!checkPassword || s.Password == password) {
				student := s
				return Principal{Kind: KindStudent, Student: &student}, true
			}
		}
	case KindAdmin:
		def := m.defaultAdmin
		if def.Username != "" && def.Username == key && (!checkPassword || def.Password == password) {
			return Principal{Kind: KindAdmin, Admin: &portal.Admin{
				ID:       DefaultAdminID,
				Username: def.Username,
				Name:     "Administrator",
			}}, true
		}
		for _, a := range d.Admins {
			if a.Username == key && (!checkPassword || a.Password == password) {
				admin := a
				return Principal{Kind: KindAdmin, Admin: &admin}, true
			}
		}
	}
	return Principal{}, false
}

func (m *Manager) setCurrent(p Principal) {
	_ = m.holder.State().Update(func(d *portal.Data) error {
		d.CurrentStudent, d.CurrentAdmin = nil, nil
		if p.Student != nil {
			s := *p.Student
			d.CurrentStudent = &s
		}
		if p.Admin != nil {
			a := *p.Admin
			d.CurrentAdmin = &a
		}
		return nil
	})
}
