package notify_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dsiportal/placement-sync/internal/feedback"
	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/notify/mocks"
	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/remote"
	psync "github.com/dsiportal/placement-sync/internal/sync"
)

const testPath = "placement-portal/data"

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (*recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Notification.Title)
	}
	return out
}

type panicSink struct{}

func (panicSink) Name() string { return "panic" }

func (panicSink) Deliver(context.Context, notify.Event) error { panic("speaker on fire") }

func loadedEngine(t *testing.T, store remote.Store) *psync.Engine {
	t.Helper()
	engine := psync.NewEngine(store, portal.NewState(), testPath,
		psync.WithMessenger(feedback.NewRecorder(0)),
		psync.WithReadyTimeout(200*time.Millisecond))
	require.NoError(t, engine.InitialLoad(context.Background()))
	return engine
}

func notificationDoc(t *testing.T, titles ...string) []byte {
	t.Helper()
	doc := portal.Document{}
	for _, title := range titles {
		// ids derive from the title so the same entity keeps its id across documents
		id := int64(title[0])
		doc.Notifications = append(doc.Notifications, portal.Notification{
			ID:        portal.ID(fmt.Sprintf("%d", id)),
			Type:      portal.NotificationInfo,
			Title:     title,
			Message:   title + " message",
			Timestamp: id,
		})
	}
	data, err := doc.Encode()
	require.NoError(t, err)
	return data
}

func listTitles(d *notify.Dispatcher) []string {
	var out []string
	for _, n := range d.List() {
		out = append(out, n.Title)
	}
	return out
}

func TestDispatcher_AddIsIdempotentByContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := remote.NewMemoryStore()
	sink := &recordingSink{}
	d := notify.NewDispatcher(loadedEngine(t, store), notify.WithSinks(sink))

	first, added, err := d.Add(ctx, notify.Draft{Title: "X", Message: "Y"})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, portal.NotificationInfo, first.Type)
	assert.False(t, first.Read)
	assert.Equal(t, first.Timestamp, mustInt(t, first.ID))

	_, added, err = d.Add(ctx, notify.Draft{Title: "X", Message: "Y", Type: portal.NotificationWarning})
	require.NoError(t, err)
	assert.False(t, added)

	assert.Len(t, d.List(), 1)
	assert.Equal(t, []string{"X"}, sink.titles(), "only the first add fans out")
	assert.Equal(t, 1, store.WriteCount())
}

func TestDispatcher_AddValidatesDraft(t *testing.T) {
	t.Parallel()

	d := notify.NewDispatcher(loadedEngine(t, remote.NewMemoryStore()))

	tests := []struct {
		name  string
		draft notify.Draft
	}{
		{name: "missing title", draft: notify.Draft{Message: "m"}},
		{name: "missing message", draft: notify.Draft{Title: "t"}},
		{name: "unknown type", draft: notify.Draft{Title: "t", Message: "m", Type: "urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, added, err := d.Add(context.Background(), tt.draft)
			assert.ErrorIs(t, err, notify.ErrInvalidDraft)
			assert.False(t, added)
		})
	}
}

func TestDispatcher_TrimsToNewestTwenty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := notify.NewDispatcher(loadedEngine(t, remote.NewMemoryStore()))

	for i := range 25 {
		_, _, err := d.Add(ctx, notify.Draft{Title: fmt.Sprintf("n%02d", i), Message: "m"})
		require.NoError(t, err)
	}

	titles := listTitles(d)
	require.Len(t, titles, 20)
	assert.Equal(t, "n24", titles[0])
	assert.Equal(t, "n05", titles[19])
}

func TestDispatcher_IDsStayUniqueWithinOneMillisecond(t *testing.T) {
	t.Parallel()

	fixed := time.UnixMilli(1700000000000)
	d := notify.NewDispatcher(loadedEngine(t, remote.NewMemoryStore()),
		notify.WithClock(func() time.Time { return fixed }))

	a, _, err := d.Add(context.Background(), notify.Draft{Title: "a", Message: "m"})
	require.NoError(t, err)
	b, _, err := d.Add(context.Background(), notify.Draft{Title: "b", Message: "m"})
	require.NoError(t, err)

	assert.Equal(t, portal.ID("1700000000000"), a.ID)
	assert.Equal(t, portal.ID("1700000000001"), b.ID)
}

func TestDispatcher_BadgeTracksUnread(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	badge := notify.NewBadge("")
	d := notify.NewDispatcher(loadedEngine(t, remote.NewMemoryStore()), notify.WithBadge(badge))

	check := func() {
		t.Helper()
		unread := 0
		for _, n := range d.List() {
			if !n.Read {
				unread++
			}
		}
		assert.Equal(t, unread, badge.Count())
		assert.Equal(t, unread, d.Unread())
	}

	var ids []portal.ID
	for i := range 3 {
		n, _, err := d.Add(ctx, notify.Draft{Title: fmt.Sprintf("t%d", i), Message: "m"})
		require.NoError(t, err)
		ids = append(ids, n.ID)
		check()
	}
	assert.Equal(t, "(3) DSI Placement Portal", badge.Title())

	require.NoError(t, d.MarkRead(ctx, ids[1]))
	check()
	require.NoError(t, d.MarkRead(ctx, ids[1]))
	check()

	require.NoError(t, d.MarkAllRead(ctx))
	check()
	assert.Zero(t, badge.Count())
	assert.Equal(t, notify.DefaultTitle, badge.Title())
}

func TestDispatcher_MarkReadUnknownIsNoop(t *testing.T) {
	t.Parallel()

	store := remote.NewMemoryStore()
	d := notify.NewDispatcher(loadedEngine(t, store))

	require.NoError(t, d.MarkRead(context.Background(), "42"))
	require.NoError(t, d.MarkRead(context.Background(), struct{}{}))
	assert.Zero(t, store.WriteCount())
}

func TestDispatcher_DeleteNormalizesIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := notify.NewDispatcher(loadedEngine(t, remote.NewMemoryStore()))

	a, _, err := d.Add(ctx, notify.Draft{Title: "a", Message: "m"})
	require.NoError(t, err)
	b, _, err := d.Add(ctx, notify.Draft{Title: "b", Message: "m"})
	require.NoError(t, err)
	c, _, err := d.Add(ctx, notify.Draft{Title: "c", Message: "m"})
	require.NoError(t, err)

	require.NoError(t, d.Delete(ctx, mustInt(t, a.ID)))
	require.NoError(t, d.Delete(ctx, b.ID.String()))
	require.NoError(t, d.Delete(ctx, float64(mustInt(t, c.ID))))
	assert.Empty(t, d.List())

	padded, _, err := d.Add(ctx, notify.Draft{Title: "padded", Message: "m"})
	require.NoError(t, err)
	require.NoError(t, d.Delete(ctx, "00"+padded.ID.String()), "leading zeros name the same id")
	assert.Empty(t, d.List())
}

func TestDispatcher_DeleteNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	recorder := feedback.NewRecorder(0)
	store := remote.NewMemoryStore()
	d := notify.NewDispatcher(loadedEngine(t, store), notify.WithMessenger(recorder))

	err := d.Delete(ctx, 12345)
	assert.ErrorIs(t, err, notify.ErrNotFound)
	msg, ok := recorder.Last()
	require.True(t, ok)
	assert.Equal(t, feedback.LevelError, msg.Level)
	assert.Zero(t, store.WriteCount())
}

func TestDispatcher_DeleteRequiresConfirmation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var prompts []string
	declined := notify.ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		prompts = append(prompts, prompt)
		return false, nil
	})
	d := notify.NewDispatcher(loadedEngine(t, remote.NewMemoryStore()), notify.WithConfirmer(declined))

	n, _, err := d.Add(ctx, notify.Draft{Title: "keep", Message: "m"})
	require.NoError(t, err)

	assert.ErrorIs(t, d.Delete(ctx, n.ID), notify.ErrCancelled)
	assert.Len(t, d.List(), 1)
	assert.Len(t, prompts, 1)

	failing := notify.NewDispatcher(loadedEngine(t, remote.NewMemoryStore()),
		notify.WithConfirmer(notify.ConfirmFunc(func(context.Context, string) (bool, error) {
			return false, errors.New("dialog closed")
		})))
	assert.Error(t, failing.Delete(ctx, n.ID))
}

func TestDispatcher_SinkFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	failing := mocks.NewMockSink(ctrl)
	failing.EXPECT().Name().Return("failing").AnyTimes()
	failing.EXPECT().Deliver(gomock.Any(), gomock.Any()).Return(errors.New("no audio device"))

	slow := mocks.NewMockSink(ctrl)
	slow.EXPECT().Name().Return("slow").AnyTimes()
	slow.EXPECT().Deliver(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ notify.Event) error {
		<-ctx.Done()
		return ctx.Err()
	})

	recording := &recordingSink{}
	d := notify.NewDispatcher(loadedEngine(t, remote.NewMemoryStore()),
		notify.WithSinks(failing, panicSink{}, slow, recording),
		notify.WithSinkTimeout(50*time.Millisecond))

	start := time.Now()
	_, added, err := d.Add(context.Background(), notify.Draft{Title: "drive", Message: "Acme"})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"drive"}, recording.titles())
	assert.Less(t, time.Since(start), 5*time.Second, "a stuck sink is bounded by its timeout")
}

func TestDispatcher_AddShowsBeforePersistSucceeds(t *testing.T) {
	t.Parallel()

	store := remote.NewMemoryStore()
	engine := loadedEngine(t, store)
	sink := &recordingSink{}
	d := notify.NewDispatcher(engine, notify.WithSinks(sink))

	store.SetReadOnly(true)
	n, added, err := d.Add(context.Background(), notify.Draft{Title: "offline", Message: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrPermissionDenied)
	assert.True(t, added)
	assert.Equal(t, []string{"offline"}, sink.titles())

	_, found := d.Lookup(n.ID)
	assert.True(t, found, "local change is kept")
}

func TestDispatcher_SnapshotSurfacesOnlyNewNotifications(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := remote.NewMemoryStore(remote.WithDocument(testPath, notificationDoc(t, "A", "B")))
	engine := loadedEngine(t, store)
	sink := &recordingSink{}
	d := notify.NewDispatcher(engine, notify.WithSinks(sink))
	engine.OnReplace(d.ObserveSnapshot)
	require.NoError(t, engine.SubscribeAndReplace(ctx))
	d.Wait()
	assert.Empty(t, sink.titles(), "the current document is not new")

	require.NoError(t, store.Write(ctx, testPath, notificationDoc(t, "C", "A", "B")))
	d.Wait()

	assert.Equal(t, []string{"C"}, sink.titles())
	assert.Equal(t, []string{"C", "A", "B"}, listTitles(d))

	// redelivery of the same document surfaces nothing
	require.NoError(t, store.Write(ctx, testPath, notificationDoc(t, "C", "A", "B")))
	d.Wait()
	assert.Equal(t, []string{"C"}, sink.titles())
}

func TestDispatcher_SnapshotBurstPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "newest only", limit: 1, want: []string{"E"}},
		{name: "two at once", limit: 2, want: []string{"E", "D"}},
		{name: "unbounded", limit: 0, want: []string{"E", "D", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := remote.NewMemoryStore(remote.WithDocument(testPath, notificationDoc(t, "B")))
			engine := loadedEngine(t, store)
			sink := &recordingSink{}
			d := notify.NewDispatcher(engine, notify.WithSinks(sink), notify.WithMaxSimultaneousToasts(tt.limit))
			engine.OnReplace(d.ObserveSnapshot)
			require.NoError(t, engine.SubscribeAndReplace(ctx))

			require.NoError(t, store.Write(ctx, testPath, notificationDoc(t, "E", "D", "C", "B")))
			d.Wait()
			assert.ElementsMatch(t, tt.want, sink.titles())
			assert.Len(t, d.List(), 4)
		})
	}
}

func TestDispatcher_LocalAddIsNotSurfacedAgainBySnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := remote.NewMemoryStore()
	engine := loadedEngine(t, store)
	sink := &recordingSink{}
	d := notify.NewDispatcher(engine, notify.WithSinks(sink))
	engine.OnReplace(d.ObserveSnapshot)
	require.NoError(t, engine.SubscribeAndReplace(ctx))

	_, _, err := d.Add(ctx, notify.Draft{Title: "local", Message: "m"})
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, []string{"local"}, sink.titles())
}

func TestDispatcher_ReattachesActionCallbacks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc := portal.Document{Notifications: []portal.Notification{{
		ID: "1", Title: "Drive", Message: "Acme", Action: &portal.Action{Text: "View Jobs"},
	}}}
	data, err := doc.Encode()
	require.NoError(t, err)
	store := remote.NewMemoryStore()
	engine := loadedEngine(t, store)

	called := false
	table := notify.NewActionTable()
	table.Register("View Jobs", func(context.Context) error {
		called = true
		return nil
	})
	d := notify.NewDispatcher(engine, notify.WithActionTable(table))
	engine.OnReplace(d.ObserveSnapshot)
	require.NoError(t, engine.SubscribeAndReplace(ctx))
	require.NoError(t, store.Write(ctx, testPath, data))
	d.Wait()

	n, ok := d.Lookup("1")
	require.True(t, ok)
	require.NotNil(t, n.Action)
	require.NotNil(t, n.Action.Callback)
	require.NoError(t, n.Action.Callback(ctx))
	assert.True(t, called)
}

func TestDispatcher_SeedWelcome(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := remote.NewMemoryStore()
	sink := &recordingSink{}
	d := notify.NewDispatcher(loadedEngine(t, store), notify.WithSinks(sink))

	seeded, err := d.SeedWelcome(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)
	list := d.List()
	require.Len(t, list, 2)
	assert.Greater(t, list[0].Timestamp, list[1].Timestamp, "newest first")
	assert.Equal(t, 2, d.Unread())
	assert.Empty(t, sink.titles(), "seeding is silent")

	seeded, err = d.SeedWelcome(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Equal(t, 1, store.WriteCount())
}

func mustInt(t *testing.T, id portal.ID) int64 {
	t.Helper()
	n, ok := id.Int()
	require.True(t, ok)
	return n
}
