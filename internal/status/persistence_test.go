package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocumentPath = "placement-portal/data"

func TestFilePersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "status")
	p := NewFilePersistence(dir)
	ctx := context.Background()

	loaded, err := p.LoadStatus(ctx, testDocumentPath)
	require.NoError(t, err)
	assert.Equal(t, &SyncStatus{}, loaded, "nothing saved yet")

	loadTime := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	saved := &SyncStatus{
		Phase:         SyncPhaseReady,
		DocumentPath:  testDocumentPath,
		LastLoadTime:  &loadTime,
		SnapshotCount: 4,
	}
	require.NoError(t, p.SaveStatus(ctx, testDocumentPath, saved))
	assert.FileExists(t, filepath.Join(dir, "placement-portal%2Fdata.status.json"))

	loaded, err = p.LoadStatus(ctx, "/"+testDocumentPath+"/")
	require.NoError(t, err)
	assert.Equal(t, SyncPhaseReady, loaded.Phase)
	assert.Equal(t, 4, loaded.SnapshotCount)
	require.NotNil(t, loaded.LastLoadTime)
	assert.True(t, loadTime.Equal(*loaded.LastLoadTime))

	// overwrite leaves no temporary files behind
	require.NoError(t, p.SaveStatus(ctx, testDocumentPath, &SyncStatus{Phase: SyncPhaseFailed, Message: "timed out"}))
	loaded, err = p.LoadStatus(ctx, testDocumentPath)
	require.NoError(t, err)
	assert.Equal(t, SyncPhaseFailed, loaded.Phase)
	assert.Nil(t, loaded.LastLoadTime)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFilePersistence_SeparateDocuments(t *testing.T) {
	t.Parallel()

	p := NewFilePersistence(t.TempDir())
	ctx := context.Background()
	require.NoError(t, p.SaveStatus(ctx, testDocumentPath, &SyncStatus{Phase: SyncPhaseReady}))
	require.NoError(t, p.SaveStatus(ctx, "placement-portal__data", &SyncStatus{Phase: SyncPhaseFailed}))

	a, err := p.LoadStatus(ctx, testDocumentPath)
	require.NoError(t, err)
	b, err := p.LoadStatus(ctx, "placement-portal__data")
	require.NoError(t, err)
	assert.Equal(t, SyncPhaseReady, a.Phase)
	assert.Equal(t, SyncPhaseFailed, b.Phase)
}

func TestFilePersistence_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewFilePersistence(dir)
	ctx := context.Background()

	assert.Error(t, p.SaveStatus(ctx, "/", &SyncStatus{}))
	_, err := p.LoadStatus(ctx, "")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.status.json"), []byte("{"), 0o600))
	_, err = p.LoadStatus(ctx, "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode status")
}

func TestSyncStatus_Carry(t *testing.T) {
	t.Parallel()

	then := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	prev := &SyncStatus{
		Phase:            SyncPhaseReady,
		AttemptCount:     3,
		SnapshotCount:    12,
		LastLoadTime:     &then,
		LastPersistTime:  &then,
		LastPersistError: "permission denied",
		LastSnapshotTime: &then,
	}
	cur := &SyncStatus{Phase: SyncPhaseConnecting, DocumentPath: testDocumentPath}
	cur.Carry(prev)

	assert.Equal(t, SyncPhaseConnecting, cur.Phase)
	assert.Equal(t, testDocumentPath, cur.DocumentPath)
	assert.Zero(t, cur.AttemptCount)
	assert.Zero(t, cur.SnapshotCount)
	assert.Equal(t, "permission denied", cur.LastPersistError)
	require.NotNil(t, cur.LastLoadTime)
	assert.NotSame(t, prev.LastLoadTime, cur.LastLoadTime)
	assert.True(t, then.Equal(*cur.LastSnapshotTime))

	cur.Carry(nil)
	assert.NotNil(t, cur.LastLoadTime)
}
