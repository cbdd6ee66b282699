package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStore keeps each document as a JSON file below a base directory.
// Writes go through a temporary file and an atomic rename; subscriptions
// watch the document's directory with fsnotify.
type FileStore struct {
	baseDir string

	mu      sync.Mutex
	closed  bool
	cancels map[int]context.CancelFunc
	nextID  int
	wg      sync.WaitGroup
}

// NewFileStore creates the base directory and returns a ready FileStore.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create document directory %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir, cancels: make(map[int]context.CancelFunc)}, nil
}

// Ready implements Store. A FileStore is ready once constructed.
func (*FileStore) Ready() <-chan struct{} {
	return closedReady()
}

// filePath maps a document path to its file. Paths are slash separated and
// must stay below the base directory.
func (f *FileStore) filePath(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.Trim(path, "/")))
	if clean == "." || !filepath.IsLocal(clean) {
		return "", fmt.Errorf("invalid document path %q", path)
	}
	return filepath.Join(f.baseDir, clean+".json"), nil
}

// Read implements Store.
func (f *FileStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := f.filePath(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- file is confined to baseDir by filePath
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return data, nil
}

// Write implements Store.
func (f *FileStore) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := f.filePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return mapFileError(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(file), filepath.Base(file)+".*.tmp")
	if err != nil {
		return mapFileError(err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return mapFileError(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return mapFileError(err)
	}
	if err := os.Rename(tmpPath, file); err != nil {
		_ = os.Remove(tmpPath)
		return mapFileError(err)
	}
	return nil
}

func mapFileError(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Subscribe implements Store. The current document is delivered before
// Subscribe returns; later deliveries run on a watcher goroutine.
func (f *FileStore) Subscribe(
	ctx context.Context, path string, onChange func(Snapshot), onError func(error),
) (Unsubscribe, error) {
	file, err := f.filePath(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, mapFileError(err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = watcher.Close()
		return nil, fmt.Errorf("store closed: %w", ErrUnavailable)
	}
	subCtx, cancel := context.WithCancel(ctx)
	id := f.nextID
	f.nextID++
	f.cancels[id] = cancel
	f.wg.Add(1)
	f.mu.Unlock()

	w := &fileWatch{store: f, path: path, file: file, onChange: onChange, onError: onError}
	w.emit(ctx)

	go func() {
		defer f.wg.Done()
		defer func() { _ = watcher.Close() }()
		w.loop(subCtx, watcher)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if c, ok := f.cancels[id]; ok {
				c()
				delete(f.cancels, id)
			}
			f.mu.Unlock()
		})
	}, nil
}

// Close implements Store. It stops every watcher and waits for them.
func (f *FileStore) Close() error {
	f.mu.Lock()
	f.closed = true
	for id, cancel := range f.cancels {
		cancel()
		delete(f.cancels, id)
	}
	f.mu.Unlock()
	f.wg.Wait()
	return nil
}

type fileWatch struct {
	store    *FileStore
	path     string
	file     string
	onChange func(Snapshot)
	onError  func(error)

	delivered bool
	last      Snapshot
}

func (w *fileWatch) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.emit(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Document watcher error", "path", w.path, "error", err)
			if w.onError != nil {
				w.onError(fmt.Errorf("%w: %w", ErrUnavailable, err))
			}
		}
	}
}

// emit reads the document and delivers it unless it equals the previous
// delivery.
func (w *fileWatch) emit(ctx context.Context) {
	data, err := w.store.Read(ctx, w.path)
	var snap Snapshot
	switch {
	case err == nil:
		snap = Snapshot{Data: data, Exists: true}
	case errors.Is(err, ErrNotFound):
		snap = Snapshot{}
	default:
		if ctx.Err() == nil && w.onError != nil {
			w.onError(err)
		}
		return
	}
	if w.delivered && w.last.Exists == snap.Exists && bytes.Equal(w.last.Data, snap.Data) {
		return
	}
	w.delivered = true
	w.last = snap
	w.onChange(snap)
}
