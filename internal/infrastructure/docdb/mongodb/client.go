// Package mongodb stores providers, prompts and usage records in MongoDB or
// any server speaking its wire protocol (Cosmos DB's MongoDB API).
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/opsbridge/control-service/internal/core/docdb"
)

const (
	defaultAppName        = "opsbridge-control-service"
	defaultConnectTimeout = 10 * time.Second
)

var _ docdb.Client = (*Client)(nil)

// ClientConfig holds MongoDB connection configuration.
type ClientConfig struct {
	URI            string
	DatabaseName   string
	AppName        string
	ConnectTimeout time.Duration
}

// Client owns the driver connection and the typed collections on top of it.
type Client struct {
	client    *mongo.Client
	providers *ProvidersCollection
	prompts   *PromptsCollection
	usage     *UsageCollection
}

// NewClient connects and pings the primary before returning.
func NewClient(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if cfg.DatabaseName == "" {
		return nil, fmt.Errorf("database name is required")
	}

	appName := cfg.AppName
	if appName == "" {
		appName = defaultAppName
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	c := &Client{client: mc}
	if err := c.Ping(ctx); err != nil {
		_ = mc.Disconnect(context.Background())
		return nil, err
	}

	db := mc.Database(cfg.DatabaseName)
	c.providers = NewProvidersCollection(db)
	c.prompts = NewPromptsCollection(db)
	c.usage = NewUsageCollection(db)
	return c, nil
}

func (c *Client) Providers() docdb.ProvidersCollection { return c.providers }

func (c *Client) Prompts() docdb.PromptsCollection { return c.prompts }

// Usage records are keyed by organization id in _id, so the ledger needs no
// secondary index.
func (c *Client) Usage() docdb.UsageCollection { return c.usage }

// Ping checks the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close disconnects from the server.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}

// EnsureIndexes creates the provider and prompt indexes. It is idempotent.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	for name, ensure := range map[string]func(context.Context) error{
		ProvidersCollectionName: c.providers.EnsureIndexes,
		PromptsCollectionName:   c.prompts.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
