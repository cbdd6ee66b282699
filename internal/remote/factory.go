package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dsiportal/placement-sync/internal/config"
)

// New creates the Store selected by cfg. Connection pools created here are
// released by the returned store's Close.
func New(ctx context.Context, cfg *config.BackendConfig) (Store, error) {
	switch cfg.GetType() {
	case config.BackendMemory:
		slog.Info("Using in-memory document store")
		return NewMemoryStore(), nil

	case config.BackendFile:
		dir := cfg.File.GetDir()
		slog.Info("Using file document store", "dir", dir)
		return NewFileStore(dir)

	case config.BackendPostgres:
		connString, err := cfg.Postgres.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build database connection string: %w", err)
		}
		poolCfg, err := pgxpool.ParseConfig(connString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database configuration: %w", err)
		}
		if cfg.Postgres.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Postgres.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		slog.Info("Using postgres document store", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return &ownedStore{Store: NewPostgresStore(ctx, pool), release: func() error {
			pool.Close()
			return nil
		}}, nil

	case config.BackendRedis:
		password, err := cfg.Redis.GetPassword()
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: password,
			DB:       cfg.Redis.DB,
		})
		slog.Info("Using redis document store", "address", cfg.Redis.Address)
		return &ownedStore{Store: NewRedisStore(ctx, client, cfg.Redis.KeyPrefix), release: client.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type %q", cfg.Type)
	}
}

// ownedStore closes a connection pool after the wrapped store.
type ownedStore struct {
	Store
	release func() error
}

func (o *ownedStore) Close() error {
	if err := o.Store.Close(); err != nil {
		_ = o.release()
		return err
	}
	return o.release()
}
