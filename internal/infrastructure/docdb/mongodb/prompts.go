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

// PromptsCollectionName is the name of the prompts collection.
const PromptsCollectionName = "prompts"

// PromptsCollection implements the docdb.PromptsCollection interface for MongoDB.
type PromptsCollection struct {
	collection *mongo.Collection
}

// NewPromptsCollection creates a new prompts collection wrapper.
func NewPromptsCollection(db *mongo.Database) *PromptsCollection {
	return &PromptsCollection{
		collection: db.Collection(PromptsCollectionName),
	}
}

// Create inserts a new prompt.
func (c *PromptsCollection) Create(ctx context.Context, prompt *models.Prompt) error {
	if prompt.ID == "" {
		return fmt.Errorf("prompt ID is required")
	}

	if _, err := c.collection.InsertOne(ctx, prompt); err != nil {
		return fmt.Errorf("failed to insert prompt: %w", err)
	}
	return nil
}

// Get retrieves a prompt by ID.
func (c *PromptsCollection) Get(ctx context.Context, id string) (*models.Prompt, error) {
	var prompt models.Prompt
	err := c.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&prompt)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return &prompt, nil
}

// List retrieves prompts with pagination and filtering.
func (c *PromptsCollection) List(ctx context.Context, opts *docdb.ListPromptsOptions) ([]*models.Prompt, error) {
	cursor, err := c.collection.Find(ctx, c.buildFilter(opts), c.buildFindOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer cursor.Close(ctx)

	var prompts []*models.Prompt
	if err := cursor.All(ctx, &prompts); err != nil {
		return nil, fmt.Errorf("failed to decode prompts: %w", err)
	}
	return prompts, nil
}

// Update replaces an existing prompt.
func (c *PromptsCollection) Update(ctx context.Context, prompt *models.Prompt) error {
	result, err := c.collection.ReplaceOne(ctx, bson.M{"_id": prompt.ID}, prompt)
	if err != nil {
		return fmt.Errorf("failed to update prompt: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("prompt %s: %w", prompt.ID, docdb.ErrNotFound)
	}
	return nil
}

// Delete removes a prompt by ID.
func (c *PromptsCollection) Delete(ctx context.Context, id string) error {
	result, err := c.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete prompt: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("prompt %s: %w", id, docdb.ErrNotFound)
	}
	return nil
}

// EnsureIndexes creates necessary indexes for the prompts collection.
func (c *PromptsCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "organizationId", Value: 1},
				{Key: "category", Value: 1},
			},
			Options: options.Index().SetName("idx_org_category"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_created_at"),
		},
		{
			Keys:    bson.D{{Key: "tags", Value: 1}},
			Options: options.Index().SetName("idx_tags"),
		},
	}

	if _, err := c.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create prompts indexes: %w", err)
	}
	return nil
}

// buildFilter creates a MongoDB filter from list options.
func (c *PromptsCollection) buildFilter(opts *docdb.ListPromptsOptions) bson.M {
	filter := bson.M{}
	if opts == nil {
		return filter
	}

	if opts.OrganizationID != "" {
		if opts.IncludeSystem {
			filter["$or"] = bson.A{
				bson.M{"organizationId": opts.OrganizationID},
				bson.M{"organizationId": bson.M{"$exists": false}},
			}
		} else {
			filter["organizationId"] = opts.OrganizationID
		}
	}
	if opts.Category != "" {
		filter["category"] = opts.Category
	}
	if opts.ActiveOnly {
		filter["isActive"] = true
	}

	return filter
}

// buildFindOptions creates MongoDB find options from list options.
func (c *PromptsCollection) buildFindOptions(opts *docdb.ListPromptsOptions) *options.FindOptions {
	findOpts := options.Find()
	if opts == nil {
		return findOpts
	}

	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	sortOrder := -1
	if opts.OrderBy == docdb.SortOrderAsc {
		sortOrder = 1
	}
	findOpts.SetSort(bson.D{{Key: "createdAt", Value: sortOrder}})

	return findOpts
}
