// Package docdb defines the document store behind providers, prompts and
// usage records.
package docdb

import (
	"context"
	"errors"
)

// ErrNotFound is returned by update and delete operations that match no
// document. Reads report absence with a nil result instead.
var ErrNotFound = errors.New("document not found")

// Type selects a Client implementation.
type Type string

const (
	TypeMongoDB Type = "mongodb"
	// TypeCosmosDB is Cosmos DB through its MongoDB API.
	TypeCosmosDB Type = "cosmosdb"
	// TypeMemory keeps everything in process. Development and tests only.
	TypeMemory Type = "memory"
)

// SortOrder is the direction of a createdAt ordering.
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// Client exposes the typed collections of one database.
type Client interface {
	Providers() ProvidersCollection
	Prompts() PromptsCollection
	// Usage is the per-tenant usage ledger.
	Usage() UsageCollection

	// EnsureIndexes creates missing indexes. Safe to call on every start.
	EnsureIndexes(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
