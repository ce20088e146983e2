// Package redis backs the prompt cache and the session mirror with Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsbridge/control-service/internal/core/cache"
)

var _ cache.Client = (*Client)(nil)

// DefaultKeyPrefix namespaces every key the service writes.
const DefaultKeyPrefix = "opsbridge:"

// Config holds Redis connection configuration.
type Config struct {
	Host       string
	Port       string
	Password   string
	DB         int
	DefaultTTL time.Duration
	// KeyPrefix is prepended to every key. Defaults to DefaultKeyPrefix.
	KeyPrefix string
}

// Client implements cache.Client over a single Redis connection pool.
type Client struct {
	rdb        *redis.Client
	defaultTTL time.Duration
	prefix     string
}

// Connect opens a pool and verifies it with a ping.
func Connect(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// NewClient connects to Redis and returns a cache client.
func NewClient(cfg Config) (*Client, error) {
	rdb, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	return NewClientFromRedis(rdb, cfg), nil
}

// NewClientFromRedis wraps an existing pool, so the rate limiter and the
// cache can share one connection.
func NewClientFromRedis(rdb *redis.Client, cfg Config) *Client {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{rdb: rdb, defaultTTL: cfg.DefaultTTL, prefix: prefix}
}

// Redis returns the underlying pool for components that need raw commands.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

// Get returns the value under key, or nil when it is absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key. A zero ttl uses the configured default; a zero
// default means no expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key and reports whether it existed.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Del(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %s: %w", key, err)
	}
	return n > 0, nil
}

// Ping checks if the Redis connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the pool. Other holders of Redis() lose their connection too.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}
