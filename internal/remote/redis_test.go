package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(context.Background(), client, "dsi:")
	t.Cleanup(func() { _ = s.Close() })

	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("redis store never became ready")
	}
	return s, mr
}

func TestRedisStore_ReadWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.Read(ctx, testPath)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write(ctx, testPath, []byte(`{"jobs":[]}`)))
	data, err := s.Read(ctx, testPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobs":[]}`, string(data))

	stored, err := mr.Get("dsi:" + testPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobs":[]}`, stored)
}

func TestRedisStore_Subscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newRedisStore(t)
	require.NoError(t, s.Write(ctx, testPath, []byte(`{"v":0}`)))

	var mu sync.Mutex
	var got []Snapshot
	snapshots := func() []Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return append([]Snapshot(nil), got...)
	}

	unsubscribe, err := s.Subscribe(ctx, testPath, func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, snap)
	}, nil)
	require.NoError(t, err)
	t.Cleanup(unsubscribe)

	require.Len(t, snapshots(), 1)
	assert.JSONEq(t, `{"v":0}`, string(snapshots()[0].Data))

	require.NoError(t, s.Write(ctx, testPath, []byte(`{"v":1}`)))
	require.Eventually(t, func() bool { return len(snapshots()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"v":1}`, string(snapshots()[1].Data))

	require.NoError(t, s.Delete(ctx, testPath))
	require.Eventually(t, func() bool { return len(snapshots()) == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, snapshots()[2].Exists)
}

func TestRedisStore_CloseEndsLiveSubscriptions(t *testing.T) {
	t.Parallel()

	s, _ := newRedisStore(t)
	_, err := s.Subscribe(context.Background(), testPath, func(Snapshot) {}, nil)
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = s.Subscribe(subCtx, "other/doc", func(Snapshot) {}, nil)
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on a subscription whose context is still live")
	}
}

func TestRedisStore_SubscriptionEndsWithCallerContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newRedisStore(t)

	var mu sync.Mutex
	count := 0
	subCtx, cancel := context.WithCancel(ctx)
	_, err := s.Subscribe(subCtx, testPath, func(Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}, nil)
	require.NoError(t, err)
	cancel()

	// give the watcher time to observe the cancellation
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Write(ctx, testPath, []byte(`{"v":1}`)))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "only the initial delivery arrives")
}

func TestRedisStore_UnavailableServer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newRedisStore(t)
	mr.Close()

	err := s.Write(ctx, testPath, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMapRedisError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil reply", err: redis.Nil, want: ErrNotFound},
		{name: "acl denial", err: errors.New("NOPERM this user has no permissions to run the 'set' command"), want: ErrPermissionDenied},
		{name: "replica", err: errors.New("READONLY You can't write against a read only replica."), want: ErrPermissionDenied},
		{name: "network", err: errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), want: ErrUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, mapRedisError(tt.err), tt.want)
		})
	}
	assert.NoError(t, mapRedisError(nil))
}
