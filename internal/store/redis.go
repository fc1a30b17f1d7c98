package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Writes go to the primary store and invalidate the cache; reads check
// Redis first then fall back to the primary. Redis failures are logged
// and never fail a call.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.primary.Put(ctx, key, value); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, key string) error {
	if err := s.primary.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate(ctx, key)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, cacheKey(key)).Bytes()
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("redis read failed, using primary", "key", key, "err", err)
	}

	// Cache miss: read from primary.
	data, err = s.primary.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, cacheKey(key), data, s.ttl).Err(); err != nil {
		slog.Warn("redis write failed", "key", key, "err", err)
	}
	return data, nil
}

// --- Cache helpers ---

func (s *CachedStore) invalidate(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, cacheKey(key)).Err(); err != nil {
		slog.Warn("redis invalidate failed", "key", key, "err", err)
	}
}

func cacheKey(key string) string { return fmt.Sprintf("state:%s", key) }
