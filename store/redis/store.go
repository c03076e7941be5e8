// Package redis implements store.Store using Redis, for deployments
// that must survive restarts. Jobs ready for dispatch sit in a Sorted
// Set ordered by priority, and all entities are stored as Redis Hashes.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/job"
	"github.com/reelmill/conduct/schedule"
)

// Compile-time interface checks.
var (
	_ job.Store      = (*Store)(nil)
	_ schedule.Store = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
	closed atomic.Bool
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the store is open and the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Close marks the store closed. Every operation afterwards returns
// ErrStoreClosed. The caller owns the Redis client lifecycle; the
// connection itself is left open.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// guard rejects operations on a closed store.
func (s *Store) guard() error {
	if s.closed.Load() {
		return conduct.ErrStoreClosed
	}
	return nil
}
