// Package cache defines the key/value cache behind prompt reads and the
// automation session mirror.
package cache

import (
	"context"
	"time"
)

// Type selects the cache backend.
type Type string

const (
	TypeRedis Type = "redis"
	// TypeNone disables caching. Prompt reads go to the store and the
	// session mirror is off.
	TypeNone Type = "none"
)

// Client stores opaque byte values under string keys.
type Client interface {
	// Get returns nil, nil for an absent key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value. A zero ttl falls back to the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}
