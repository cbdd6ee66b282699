package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/dsiportal/placement-sync/internal/config"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// Store persists the session reference.
type Store interface {
	// Save replaces the stored reference
	Save(ctx context.Context, rec Record) error
	// Load returns the stored reference. The bool is false when none is stored.
	Load(ctx context.Context) (Record, bool, error)
	// Clear removes the stored reference. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// NewStore creates the store selected by cfg.
func NewStore(cfg *config.SessionConfig) (Store, error) {
	switch cfg.GetStore() {
	case config.SessionStoreFile:
		return NewFileStore(cfg.GetFile()), nil
	case config.SessionStoreKeyring:
		return NewKeyringStore(cfg.GetKeyringService()), nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.GetStore())
	}
}

// FileStore keeps the reference in a YAML file readable only by the owner.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename session file: %w", err)
	}
	return nil
}

// Load implements Store.
func (f *FileStore) Load(_ context.Context) (Record, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read session file: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("failed to parse session file: %w", err)
	}
	if rec.Key == "" {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Clear implements Store.
func (f *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

const keyringUser = "session"

// KeyringStore keeps the reference in the OS keyring.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store using the keyring entry of service.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

// Save implements Store.
func (k *KeyringStore) Save(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := keyring.Set(k.service, keyringUser, string(data)); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}
	return nil
}

// Load implements Store.
func (k *KeyringStore) Load(_ context.Context) (Record, bool, error) {
	secret, err := keyring.Get(k.service, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read session from keyring: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(secret), &rec); err != nil {
		return Record{}, false, fmt.Errorf("failed to parse keyring session: %w", err)
	}
	return rec, rec.Key != "", nil
}

// Clear implements Store.
func (k *KeyringStore) Clear(_ context.Context) error {
	err := keyring.Delete(k.service, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete keyring session: %w", err)
	}
	return nil
}
