package docdb

import (
	"context"

	"github.com/opsbridge/control-service/internal/domain/models"
)

// ListProvidersOptions contains options for listing providers.
type ListProvidersOptions struct {
	ActiveOnly bool
}

// ProvidersCollection defines the interface for provider catalog operations.
type ProvidersCollection interface {
	// Create inserts a new provider. The ID must be set by the caller.
	Create(ctx context.Context, provider *models.Provider) error

	// Get retrieves a provider by ID. Returns nil, nil if absent.
	Get(ctx context.Context, id string) (*models.Provider, error)

	// List returns providers in creation order.
	List(ctx context.Context, opts *ListProvidersOptions) ([]*models.Provider, error)

	// Update replaces an existing provider. Returns ErrNotFound if absent.
	Update(ctx context.Context, provider *models.Provider) error

	// Delete removes a provider by ID. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
