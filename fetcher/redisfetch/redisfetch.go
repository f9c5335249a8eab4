// Package redisfetch builds query fetchers that read JSON values from Redis.
package redisfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IvanBrykalov/querycache/cache"
	"github.com/IvanBrykalov/querycache/fetcher"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned in the Result when the Redis key does not exist.
var ErrNotFound = errors.New("redisfetch: key not found")

// Config holds the configuration for the Redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL applies to values written with Write; zero means no expiry.
	TTL time.Duration
}

// Source reads (and, for seeding, writes) JSON values kept in Redis.
type Source[K comparable, V any] struct {
	rdb    redis.UniversalClient
	logger zerolog.Logger
	ttl    time.Duration
	keyFn  func(K) string
	owned  bool
}

// New connects to Redis and pings it before returning.
// keyFn maps a query key to a Redis key; nil uses fmt.Sprint.
func New[K comparable, V any](ctx context.Context, cfg Config, logger zerolog.Logger, keyFn func(K) string) (*Source[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	s := NewFromClient[K, V](rdb, cfg.TTL, logger, keyFn)
	s.owned = true
	return s, nil
}

// NewFromClient wraps an existing client. Close does not close it.
func NewFromClient[K comparable, V any](rdb redis.UniversalClient, ttl time.Duration, logger zerolog.Logger, keyFn func(K) string) *Source[K, V] {
	if keyFn == nil {
		keyFn = func(k K) string { return fmt.Sprint(k) }
	}
	return &Source[K, V]{
		rdb:    rdb,
		logger: logger.With().Str("component", "redisfetch").Logger(),
		ttl:    ttl,
		keyFn:  keyFn,
	}
}

// Fetcher returns a cache.Fetcher reading from this source.
func (s *Source[K, V]) Fetcher() cache.Fetcher[K, fetcher.Result[V]] {
	return fetcher.Wrap(s.Get)
}

// Get reads and decodes the value for key. A missing key yields ErrNotFound.
func (s *Source[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	rk := s.keyFn(key)
	raw, err := s.rdb.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug().Str("key", rk).Msg("Redis key not found.")
		return zero, fmt.Errorf("%w: %s", ErrNotFound, rk)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", rk).Msg("Unexpected Redis error during fetch.")
		return zero, err
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Error().Err(err).Str("key", rk).Msg("Failed to unmarshal cached data.")
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return v, nil
}

// Write stores v as JSON under key with the configured TTL.
func (s *Source[K, V]) Write(ctx context.Context, key K, v V) error {
	rk := s.keyFn(key)
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := s.rdb.Set(ctx, rk, data, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", rk).Msg("Failed to set data in Redis.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection if New opened it.
func (s *Source[K, V]) Close() error {
	if !s.owned {
		return nil
	}
	s.logger.Info().Msg("Closing Redis client connection...")
	return s.rdb.Close()
}
