package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dsiportal/placement-sync/internal/config"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/session"
	"github.com/dsiportal/placement-sync/internal/session/mocks"
)

type holder struct {
	state *portal.State
}

func (h holder) State() *portal.State { return h.state }

type countingSeeder struct {
	calls int
	err   error
}

func (s *countingSeeder) SeedWelcome(context.Context) (bool, error) {
	s.calls++
	return s.err == nil, s.err
}

func newHolder(t *testing.T) holder {
	t.Helper()
	state := portal.NewState()
	require.NoError(t, state.Update(func(d *portal.Data) error {
		d.Students = []portal.Student{
			{ID: "s1", USN: "1DS21CS001", Name: "Asha", Password: "secret"},
			{ID: "s2", USN: "1DS21CS002", Name: "Ravi", Password: "hunter2"},
		}
		d.Admins = []portal.Admin{{ID: "a1", Username: "tpo", Password: "office"}}
		return nil
	}))
	return holder{state: state}
}

func newManager(t *testing.T, opts ...session.Option) (*session.Manager, holder, *session.FileStore) {
	t.Helper()
	h := newHolder(t)
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.yaml"))
	return session.NewManager(h, store, opts...), h, store
}

func TestManager_Login(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    session.Kind
		creds   session.Credentials
		wantKey string
		wantErr error
	}{
		{name: "student", kind: session.KindStudent, creds: session.Credentials{Identifier: "1DS21CS001", Password: "secret"}, wantKey: "1DS21CS001"},
		{name: "student wrong password", kind: session.KindStudent, creds: session.Credentials{Identifier: "1DS21CS001", Password: "hunter2"}, wantErr: session.ErrInvalidCredentials},
		{name: "student usn is exact", kind: session.KindStudent, creds: session.Credentials{Identifier: "1ds21cs001", Password: "secret"}, wantErr: session.ErrInvalidCredentials},
		{name: "default admin", kind: session.KindAdmin, creds: session.Credentials{Identifier: "admin", Password: "admin123"}, wantKey: "admin"},
		{name: "stored admin", kind: session.KindAdmin, creds: session.Credentials{Identifier: "tpo", Password: "office"}, wantKey: "tpo"},
		{name: "student credentials are not admin credentials", kind: session.KindAdmin, creds: session.Credentials{Identifier: "1DS21CS001", Password: "secret"}, wantErr: session.ErrInvalidCredentials},
		{name: "unknown kind", kind: "guest", creds: session.Credentials{Identifier: "x"}, wantErr: session.ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _, store := newManager(t)

			p, err := m.Login(context.Background(), tt.kind, tt.creds)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				_, ok := m.Current()
				assert.False(t, ok)
				_, stored, loadErr := store.Load(context.Background())
				require.NoError(t, loadErr)
				assert.False(t, stored)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.wantKey, p.Key())

			current, ok := m.Current()
			require.True(t, ok)
			assert.Equal(t, tt.wantKey, current.Key())

			rec, stored, err := store.Load(context.Background())
			require.NoError(t, err)
			require.True(t, stored)
			assert.Equal(t, session.Record{Kind: tt.kind, Key: tt.wantKey}, rec)
		})
	}
}

func TestManager_KindsAreExclusive(t *testing.T) {
	t.Parallel()

	m, h, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Login(ctx, session.KindStudent, session.Credentials{Identifier: "1DS21CS001", Password: "secret"})
	require.NoError(t, err)
	_, err = m.Login(ctx, session.KindAdmin, session.Credentials{Identifier: "tpo", Password: "office"})
	require.NoError(t, err)

	h.state.View(func(d *portal.Data) {
		assert.Nil(t, d.CurrentStudent)
		require.NotNil(t, d.CurrentAdmin)
		assert.Equal(t, "tpo", d.CurrentAdmin.Username)
	})
}

func TestManager_LoginSeedsWelcome(t *testing.T) {
	t.Parallel()

	seeder := &countingSeeder{err: errors.New("remote unavailable")}
	m, _, _ := newManager(t, session.WithSeeder(seeder))

	_, err := m.Login(context.Background(), session.KindStudent, session.Credentials{Identifier: "1DS21CS002", Password: "hunter2"})
	require.NoError(t, err, "seeding failures do not fail the login")
	assert.Equal(t, 1, seeder.calls)

	_, err = m.Login(context.Background(), session.KindStudent, session.Credentials{Identifier: "1DS21CS002", Password: "bad"})
	require.Error(t, err)
	assert.Equal(t, 1, seeder.calls)
}

func TestManager_ConfiguredDefaultAdmin(t *testing.T) {
	t.Parallel()

	m, _, _ := newManager(t, session.WithDefaultAdmin(config.AdminCredentials{Username: "root", Password: "pw"}))

	_, err := m.Login(context.Background(), session.KindAdmin, session.Credentials{Identifier: "admin", Password: "admin123"})
	require.ErrorIs(t, err, session.ErrInvalidCredentials)

	p, err := m.Login(context.Background(), session.KindAdmin, session.Credentials{Identifier: "root", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, session.DefaultAdminID, p.Admin.ID)
	assert.Empty(t, p.Admin.Password)
}

func TestManager_RestoreAndLogout(t *testing.T) {
	t.Parallel()

	h := newHolder(t)
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.yaml"))
	ctx := context.Background()

	first := session.NewManager(h, store)
	_, err := first.Login(ctx, session.KindStudent, session.Credentials{Identifier: "1DS21CS001", Password: "secret"})
	require.NoError(t, err)

	// a new process over a fresh state restores from the store
	fresh := newHolder(t)
	second := session.NewManager(fresh, store)
	p, ok, err := second.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Asha", p.Student.Name)
	fresh.state.View(func(d *portal.Data) {
		require.NotNil(t, d.CurrentStudent)
		assert.Equal(t, "1DS21CS001", d.CurrentStudent.USN)
	})

	require.NoError(t, second.Logout(ctx))
	_, ok = second.Current()
	assert.False(t, ok)
	_, stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, stored)

	require.NoError(t, second.Logout(ctx), "logging out twice is fine")
}

func TestManager_RestoreClearsStaleReference(t *testing.T) {
	t.Parallel()

	m, h, store := newManager(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, session.Record{Kind: session.KindStudent, Key: "1DS21CS001"}))

	// the student was deleted remotely since the last session
	require.NoError(t, h.state.Update(func(d *portal.Data) error {
		return d.DeleteStudent("s1")
	}))

	_, ok, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestManager_RestoreWithoutSession(t *testing.T) {
	t.Parallel()

	m, _, _ := newManager(t)
	_, ok, err := m.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_StoreFailures(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	m := session.NewManager(newHolder(t), store)
	ctx := context.Background()

	store.EXPECT().Save(gomock.Any(), session.Record{Kind: session.KindAdmin, Key: "admin"}).Return(errors.New("disk full"))
	_, err := m.Login(ctx, session.KindAdmin, session.Credentials{Identifier: "admin", Password: "admin123"})
	require.NoError(t, err, "the login stands even when the reference cannot be stored")

	store.EXPECT().Load(gomock.Any()).Return(session.Record{}, false, errors.New("corrupt"))
	_, _, err = m.Restore(ctx)
	require.Error(t, err)

	store.EXPECT().Clear(gomock.Any()).Return(errors.New("read-only"))
	require.Error(t, m.Logout(ctx))
	_, ok := m.Current()
	assert.False(t, ok, "the principal is cleared regardless")
}
