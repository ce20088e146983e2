package dotenv

import (
	"context"
	"sync"

	"github.com/opsbridge/control-service/internal/core/vault"
)

var _ vault.Client = (*Client)(nil)

// Client memoizes lookups against a dotenv Vault.
type Client struct {
	source *Vault

	mu       sync.RWMutex
	resolved map[string]string
}

// NewClient creates a client reading the given .env files.
func NewClient(paths ...string) (*Client, error) {
	v, err := NewVault(paths...)
	if err != nil {
		return nil, err
	}
	return &Client{source: v, resolved: make(map[string]string)}, nil
}

// GetSecret implements vault.Client.
func (c *Client) GetSecret(ctx context.Context, uri string, useCache bool) (string, error) {
	if useCache {
		c.mu.RLock()
		value, ok := c.resolved[uri]
		c.mu.RUnlock()
		if ok {
			return value, nil
		}
	}

	value, err := c.source.GetSecret(ctx, uri)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.resolved[uri] = value
	c.mu.Unlock()
	return value, nil
}

// Ping implements vault.Client.
func (c *Client) Ping(ctx context.Context) error {
	return c.source.Ping(ctx)
}

// Close implements vault.Client.
func (c *Client) Close() error {
	return c.source.Close()
}
