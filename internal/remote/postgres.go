package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentChannel is the LISTEN/NOTIFY channel carrying the path of every
// written document.
const DocumentChannel = "portal_documents"

const pgInsufficientPrivilege = "42501"

const (
	selectDocumentSQL = `SELECT body::text FROM portal_documents WHERE path = $1`
	upsertDocumentSQL = `INSERT INTO portal_documents (path, body, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (path) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	notifyDocumentSQL = `SELECT pg_notify($1, $2)`
)

// PostgresStore keeps documents in the portal_documents table. Writes upsert
// the row and notify DocumentChannel in one transaction; subscriptions LISTEN
// on a dedicated pooled connection.
type PostgresStore struct {
	pool *pgxpool.Pool

	ready     chan struct{}
	readyOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPostgresStore returns a store over pool. Readiness is signalled once the
// database answers a ping; pings are retried with exponential backoff until
// ctx is done or Close is called.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) *PostgresStore {
	storeCtx, cancel := context.WithCancel(ctx)
	s := &PostgresStore{
		pool:   pool,
		ready:  make(chan struct{}),
		ctx:    storeCtx,
		cancel: cancel,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.waitReady(storeCtx)
	}()
	return s
}

func (s *PostgresStore) waitReady(ctx context.Context) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return struct{}{}, s.pool.Ping(pingCtx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(0))
	if err != nil {
		slog.Debug("Stopped waiting for database readiness", "error", err)
		return
	}
	s.readyOnce.Do(func() { close(s.ready) })
}

// Ready implements Store.
func (s *PostgresStore) Ready() <-chan struct{} {
	return s.ready
}

// Read implements Store.
func (s *PostgresStore) Read(ctx context.Context, path string) ([]byte, error) {
	var body string
	err := s.pool.QueryRow(ctx, selectDocumentSQL, path).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return []byte(body), nil
}

// Write implements Store.
func (s *PostgresStore) Write(ctx context.Context, path string, data []byte) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertDocumentSQL, path, string(data)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, notifyDocumentSQL, DocumentChannel, path)
		return err
	})
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// Subscribe implements Store. The current document is delivered before
// Subscribe returns. A lost LISTEN connection is reported through onError
// and re-established with backoff, followed by a fresh delivery.
func (s *PostgresStore) Subscribe(
	ctx context.Context, path string, onChange func(Snapshot), onError func(error),
) (Unsubscribe, error) {
	conn, err := s.listen(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.emit(ctx, path, onChange); err != nil {
		conn.Release()
		return nil, err
	}

	// the watcher ends with the caller's ctx, on unsubscribe or on Close
	subCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		s.watch(subCtx, conn, path, onChange, onError)
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *PostgresStore) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{DocumentChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, mapPgError(err)
	}
	return conn, nil
}

func (s *PostgresStore) emit(ctx context.Context, path string, onChange func(Snapshot)) error {
	data, err := s.Read(ctx, path)
	switch {
	case err == nil:
		onChange(Snapshot{Data: data, Exists: true})
	case errors.Is(err, ErrNotFound):
		onChange(Snapshot{})
	default:
		return err
	}
	return nil
}

func (s *PostgresStore) watch(
	ctx context.Context, conn *pgxpool.Conn, path string, onChange func(Snapshot), onError func(error),
) {
	defer func() {
		if conn != nil {
			// The connection still has an active LISTEN; drop it instead of
			// returning it to the pool.
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if onError != nil {
				onError(mapPgError(err))
			}
			_ = conn.Conn().Close(context.Background())
			conn.Release()
			conn = nil

			conn, err = backoff.Retry(ctx, func() (*pgxpool.Conn, error) {
				return s.listen(ctx)
			}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(0))
			if err != nil {
				return
			}
			if err := s.emit(ctx, path, onChange); err != nil && onError != nil {
				onError(err)
			}
			continue
		}
		if n.Payload != path {
			continue
		}
		if err := s.emit(ctx, path, onChange); err != nil && ctx.Err() == nil && onError != nil {
			onError(err)
		}
	}
}

// Close implements Store. The pool itself belongs to the caller.
func (s *PostgresStore) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// mapPgError classifies a pgx error into the store's sentinel errors.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgInsufficientPrivilege {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("database error: %w", err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
