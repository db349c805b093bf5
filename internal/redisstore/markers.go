// Package redisstore keeps webhook dedup markers in Redis, using native key
// expiry for retention.
package redisstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "leadhooks:dedup:"

// MarkerStore implements webhooks.MarkerStore on Redis.
type MarkerStore struct {
	rdb *redis.Client
	now func() time.Time
}

// New connects to redisURL (redis:// or rediss://) and pings it.
func New(ctx context.Context, redisURL string) (*MarkerStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = time.Second

	if opts.TLSConfig == nil && strings.HasPrefix(redisURL, "rediss://") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(rdb), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client) *MarkerStore {
	return &MarkerStore{rdb: rdb, now: time.Now}
}

// HasMarker implements webhooks.MarkerStore.
func (s *MarkerStore) HasMarker(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// PutMarker implements webhooks.MarkerStore. A marker whose expiry has
// already passed is not written.
func (s *MarkerStore) PutMarker(ctx context.Context, key string, expiresAt time.Time) error {
	now := s.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, now.UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *MarkerStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *MarkerStore) Close() error {
	return s.rdb.Close()
}
