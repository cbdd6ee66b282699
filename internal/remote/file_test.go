package remote

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_ReadWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.True(t, IsReady(s))

	_, err = s.Read(ctx, testPath)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write(ctx, testPath, []byte(`{"jobs":[]}`)))
	data, err := s.Read(ctx, testPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobs":[]}`, string(data))

	_, err = os.Stat(filepath.Join(dir, "placement-portal", "data.json"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "placement-portal"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are renamed away")
}

func TestFileStore_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, path := range []string{"", "/", "../outside", "a/../../b"} {
		_, err := s.Read(context.Background(), path)
		assert.Error(t, err, path)
		assert.NotErrorIs(t, err, ErrNotFound, path)
	}
}

func TestFileStore_Subscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

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
	assert.False(t, snapshots()[0].Exists)

	require.NoError(t, s.Write(ctx, testPath, []byte(`{"v":1}`)))
	require.Eventually(t, func() bool {
		snaps := snapshots()
		last := snaps[len(snaps)-1]
		return last.Exists && string(last.Data) == `{"v":1}`
	}, 5*time.Second, 20*time.Millisecond)

	// a second writer on the same directory is observed too
	other, err := NewFileStore(s.baseDir)
	require.NoError(t, err)
	require.NoError(t, other.Write(ctx, testPath, []byte(`{"v":2}`)))
	require.Eventually(t, func() bool {
		snaps := snapshots()
		return string(snaps[len(snaps)-1].Data) == `{"v":2}`
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(s.baseDir, "placement-portal", "data.json")))
	require.Eventually(t, func() bool {
		snaps := snapshots()
		return !snaps[len(snaps)-1].Exists
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFileStore_CloseStopsWatchers(t *testing.T) {
	t.Parallel()

	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Subscribe(context.Background(), testPath, func(Snapshot) {}, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	_, err = s.Subscribe(context.Background(), testPath, func(Snapshot) {}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
