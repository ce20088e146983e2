package docdb

import (
	"context"

	"github.com/opsbridge/control-service/internal/domain/models"
)

// UsageCollection stores one usage record per tenant.
type UsageCollection interface {
	// Get retrieves a tenant's usage record. Returns nil, nil if absent.
	Get(ctx context.Context, organizationID string) (*models.UsageRecord, error)

	// Save inserts or replaces a tenant's usage record.
	Save(ctx context.Context, record *models.UsageRecord) error
}
