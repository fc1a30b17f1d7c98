// Package store defines the persistence interface for client-side state
// (watchlist, preferences, last-known values). Implementations include
// SQLite (default durable store), PostgreSQL (shared deployments), Redis
// (read-through cache over either) and in-memory (for testing).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has never been written or
// has been deleted.
var ErrNotFound = errors.New("store: key not found")

// Store is a small key/value interface. Values are opaque bytes; callers
// persist JSON documents through GetJSON and PutJSON.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}
