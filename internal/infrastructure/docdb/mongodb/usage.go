package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opsbridge/control-service/internal/domain/models"
)

// UsageCollectionName is the name of the usage ledger collection.
const UsageCollectionName = "llm_usage"

// UsageCollection implements the docdb.UsageCollection interface for MongoDB.
type UsageCollection struct {
	collection *mongo.Collection
}

// NewUsageCollection creates a new usage collection wrapper.
func NewUsageCollection(db *mongo.Database) *UsageCollection {
	return &UsageCollection{
		collection: db.Collection(UsageCollectionName),
	}
}

// Get retrieves a tenant's usage record.
func (c *UsageCollection) Get(ctx context.Context, organizationID string) (*models.UsageRecord, error) {
	var record models.UsageRecord
	err := c.collection.FindOne(ctx, bson.M{"_id": organizationID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get usage record: %w", err)
	}
	return &record, nil
}

// Save upserts a tenant's usage record.
func (c *UsageCollection) Save(ctx context.Context, record *models.UsageRecord) error {
	if record.OrganizationID == "" {
		return fmt.Errorf("organization ID is required")
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := c.collection.ReplaceOne(ctx, bson.M{"_id": record.OrganizationID}, record, opts); err != nil {
		return fmt.Errorf("failed to save usage record: %w", err)
	}
	return nil
}
