package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each document in a string key and announces writes on a
// per-document pub/sub channel carrying the whole document.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string

	ready     chan struct{}
	readyOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRedisStore returns a store over client. Readiness is signalled once the
// server answers PING.
func NewRedisStore(ctx context.Context, client redis.UniversalClient, keyPrefix string) *RedisStore {
	storeCtx, cancel := context.WithCancel(ctx)
	s := &RedisStore{
		client:    client,
		keyPrefix: strings.TrimSuffix(keyPrefix, ":"),
		ready:     make(chan struct{}),
		ctx:       storeCtx,
		cancel:    cancel,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err := backoff.Retry(storeCtx, func() (string, error) {
			pingCtx, cancel := context.WithTimeout(storeCtx, 2*time.Second)
			defer cancel()
			return s.client.Ping(pingCtx).Result()
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(0))
		if err != nil {
			slog.Debug("Stopped waiting for redis readiness", "error", err)
			return
		}
		s.readyOnce.Do(func() { close(s.ready) })
	}()
	return s
}

func (s *RedisStore) key(path string) string {
	if s.keyPrefix == "" {
		return path
	}
	return s.keyPrefix + ":" + path
}

func (s *RedisStore) channel(path string) string {
	return s.key(path) + ":changes"
}

// Ready implements Store.
func (s *RedisStore) Ready() <-chan struct{} {
	return s.ready
}

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, mapRedisError(err)
	}
	return data, nil
}

// Write implements Store.
func (s *RedisStore) Write(ctx context.Context, path string, data []byte) error {
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(path), data, 0)
		p.Publish(ctx, s.channel(path), data)
		return nil
	})
	return mapRedisError(err)
}

// Subscribe implements Store. The channel subscription is confirmed before
// the current document is read and delivered, so no write is missed.
func (s *RedisStore) Subscribe(
	ctx context.Context, path string, onChange func(Snapshot), onError func(error),
) (Unsubscribe, error) {
	pubsub := s.client.Subscribe(ctx, s.channel(path))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, mapRedisError(err)
	}

	data, err := s.Read(ctx, path)
	switch {
	case err == nil:
		onChange(Snapshot{Data: data, Exists: true})
	case errors.Is(err, ErrNotFound):
		onChange(Snapshot{})
	default:
		_ = pubsub.Close()
		return nil, err
	}

	// the watcher ends with the caller's ctx, on unsubscribe or on Close
	subCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					if onError != nil && subCtx.Err() == nil {
						onError(fmt.Errorf("subscription closed: %w", ErrUnavailable))
					}
					return
				}
				if msg.Payload == "" {
					onChange(Snapshot{})
					continue
				}
				onChange(Snapshot{Data: []byte(msg.Payload), Exists: true})
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

// Delete removes the document and announces the deletion with an empty
// payload.
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key(path))
		p.Publish(ctx, s.channel(path), "")
		return nil
	})
	return mapRedisError(err)
}

// Close implements Store. The client itself belongs to the caller.
func (s *RedisStore) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// mapRedisError classifies a go-redis error into the store's sentinel errors.
func mapRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "NOPERM") || strings.HasPrefix(msg, "NOAUTH") || strings.HasPrefix(msg, "READONLY") {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return fmt.Errorf("redis error: %w", err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
