package docdb

import (
	"context"

	"github.com/opsbridge/control-service/internal/domain/models"
)

// ListPromptsOptions contains options for listing prompts.
type ListPromptsOptions struct {
	OrganizationID string
	IncludeSystem  bool // Also return prompts with no owning tenant
	Category       models.PromptCategory
	ActiveOnly     bool
	Limit          int64
	Skip           int64
	OrderBy        SortOrder // Order by createdAt
}

// PromptsCollection defines the interface for prompt template operations.
type PromptsCollection interface {
	// Create inserts a new prompt. The ID must be set by the caller.
	Create(ctx context.Context, prompt *models.Prompt) error

	// Get retrieves a prompt by ID. Returns nil, nil if absent.
	Get(ctx context.Context, id string) (*models.Prompt, error)

	// List retrieves prompts with pagination and filtering.
	List(ctx context.Context, opts *ListPromptsOptions) ([]*models.Prompt, error)

	// Update replaces an existing prompt. Returns ErrNotFound if absent.
	Update(ctx context.Context, prompt *models.Prompt) error

	// Delete removes a prompt by ID. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// EnsureIndexes creates necessary indexes for the collection.
	EnsureIndexes(ctx context.Context) error
}
