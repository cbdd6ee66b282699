// Package database holds the PostgreSQL schema of the postgres document store
// and the versioned migrations that apply it.
package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// registers the pgx5:// database driver
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator is the subset of *migrate.Migrate used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

// NewFromConnectionString opens a migrator over the embedded migrations for
// a postgres:// or postgresql:// connection string.
func NewFromConnectionString(connString string) (Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, toMigrateURL(connString))
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return m, nil
}

// Apply runs every pending up migration on the database at connString.
// An already current schema is not an error.
func Apply(connString string) error {
	m, err := NewFromConnectionString(connString)
	if err != nil {
		return err
	}
	upErr := m.Up()
	if errors.Is(upErr, migrate.ErrNoChange) {
		upErr = nil
	}
	srcErr, dbErr := m.Close()
	return errors.Join(upErr, srcErr, dbErr)
}

// toMigrateURL rewrites the postgres scheme to the one the pgx driver registers.
func toMigrateURL(connString string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(connString, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return connString
}
