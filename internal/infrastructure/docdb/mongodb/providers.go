package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/opsbridge/control-service/internal/core/docdb"
	"github.com/opsbridge/control-service/internal/domain/models"
)

// ProvidersCollectionName is the name of the providers collection.
const ProvidersCollectionName = "llm_providers"

// ProvidersCollection implements the docdb.ProvidersCollection interface for MongoDB.
type ProvidersCollection struct {
	collection *mongo.Collection
}

// NewProvidersCollection creates a new providers collection wrapper.
func NewProvidersCollection(db *mongo.Database) *ProvidersCollection {
	return &ProvidersCollection{
		collection: db.Collection(ProvidersCollectionName),
	}
}

// Create inserts a new provider.
func (c *ProvidersCollection) Create(ctx context.Context, provider *models.Provider) error {
	if provider.ID == "" {
		return fmt.Errorf("provider ID is required")
	}

	if _, err := c.collection.InsertOne(ctx, provider); err != nil {
		return fmt.Errorf("failed to insert provider: %w", err)
	}
	return nil
}

// Get retrieves a provider by ID.
func (c *ProvidersCollection) Get(ctx context.Context, id string) (*models.Provider, error) {
	var provider models.Provider
	err := c.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&provider)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &provider, nil
}

// List returns providers ordered by creation time.
func (c *ProvidersCollection) List(ctx context.Context, opts *docdb.ListProvidersOptions) ([]*models.Provider, error) {
	filter := bson.M{}
	if opts != nil && opts.ActiveOnly {
		filter["isActive"] = true
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := c.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer cursor.Close(ctx)

	var providers []*models.Provider
	if err := cursor.All(ctx, &providers); err != nil {
		return nil, fmt.Errorf("failed to decode providers: %w", err)
	}
	return providers, nil
}

// Update replaces an existing provider.
func (c *ProvidersCollection) Update(ctx context.Context, provider *models.Provider) error {
	result, err := c.collection.ReplaceOne(ctx, bson.M{"_id": provider.ID}, provider)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("provider %s: %w", provider.ID, docdb.ErrNotFound)
	}
	return nil
}

// Delete removes a provider by ID.
func (c *ProvidersCollection) Delete(ctx context.Context, id string) error {
	result, err := c.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("provider %s: %w", id, docdb.ErrNotFound)
	}
	return nil
}

// EnsureIndexes creates necessary indexes for the providers collection.
func (c *ProvidersCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "isActive", Value: 1},
				{Key: "createdAt", Value: 1},
			},
			Options: options.Index().SetName("idx_active_created"),
		},
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("idx_name"),
		},
	}

	if _, err := c.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create providers indexes: %w", err)
	}
	return nil
}
