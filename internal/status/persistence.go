// Package status tracks the sync engine's progress and keeps it on disk so
// the last load, write and snapshot survive a restart.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_persistence.go -package=mocks -source=persistence.go Persistence

// Persistence stores one SyncStatus per document path
type Persistence interface {
	// SaveStatus replaces the saved status of documentPath
	SaveStatus(ctx context.Context, documentPath string, status *SyncStatus) error

	// LoadStatus returns the saved status of documentPath, or an empty
	// status when none was saved yet
	LoadStatus(ctx context.Context, documentPath string) (*SyncStatus, error)
}

const fileSuffix = ".status.json"

// FilePersistence keeps each status in its own JSON file under a directory
type FilePersistence struct {
	dir string
}

// NewFilePersistence returns a persistence rooted at dir. The directory is
// created on the first save.
func NewFilePersistence(dir string) *FilePersistence {
	return &FilePersistence{dir: dir}
}

// fileFor maps "placement-portal/data" to "<dir>/placement-portal%2Fdata.status.json"
func (p *FilePersistence) fileFor(documentPath string) (string, error) {
	trimmed := strings.Trim(documentPath, "/")
	if trimmed == "" {
		return "", errors.New("document path is required")
	}
	return filepath.Join(p.dir, url.PathEscape(trimmed)+fileSuffix), nil
}

// SaveStatus writes through a temporary file so readers never see a partial status.
func (p *FilePersistence) SaveStatus(_ context.Context, documentPath string, status *SyncStatus) error {
	path, err := p.fileFor(documentPath)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status of %q: %w", documentPath, err)
	}
	if err := os.MkdirAll(p.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	tmp, err := os.CreateTemp(p.dir, ".status-*")
	if err != nil {
		return fmt.Errorf("failed to save status of %q: %w", documentPath, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to save status of %q: %w", documentPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save status of %q: %w", documentPath, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save status of %q: %w", documentPath, err)
	}
	return nil
}

// LoadStatus implements Persistence.
func (p *FilePersistence) LoadStatus(_ context.Context, documentPath string) (*SyncStatus, error) {
	path, err := p.fileFor(documentPath)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is the configured status dir plus an escaped document path
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &SyncStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status of %q: %w", documentPath, err)
	}

	var status SyncStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status of %q: %w", documentPath, err)
	}
	return &status, nil
}
