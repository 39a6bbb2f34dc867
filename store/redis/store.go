// Package redis implements the bidflow stores on Redis for deployments
// that want shared state without a relational database. Records are
// stored as JSON strings, membership indexes as Sets, and checkpoints as
// Lists in append order. State updates use WATCH/MULTI for the version
// compare-and-swap.
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

	"github.com/redis/go-redis/v9"

	bidflow "github.com/warlockedward/AI-Bid-Assistant-sub001"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/notify"
	"github.com/warlockedward/AI-Bid-Assistant-sub001/workflow"
)

// Compile-time interface checks, one per subsystem.
var (
	_ workflow.StateStore      = (*Store)(nil)
	_ workflow.CheckpointStore = (*Store)(nil)
	_ workflow.DefinitionStore = (*Store)(nil)
	_ notify.RuleStore         = (*Store)(nil)
	_ bidflow.Storer           = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the bidflow store interfaces backed by Redis.
// UniversalClient is required (rather than Cmdable) because the state
// compare-and-swap uses WATCH.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
