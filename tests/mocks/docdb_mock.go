// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/opsbridge/control-service/internal/core/docdb"
	"github.com/opsbridge/control-service/internal/domain/models"
)

// MockProvidersCollection is a mock implementation of docdb.ProvidersCollection.
type MockProvidersCollection struct {
	mock.Mock
}

// Create inserts a new provider.
func (m *MockProvidersCollection) Create(ctx context.Context, provider *models.Provider) error {
	args := m.Called(ctx, provider)
	return args.Error(0)
}

// Get retrieves a provider by ID.
func (m *MockProvidersCollection) Get(ctx context.Context, id string) (*models.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Provider), args.Error(1)
}

// List returns providers in creation order.
func (m *MockProvidersCollection) List(ctx context.Context, opts *docdb.ListProvidersOptions) ([]*models.Provider, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Provider), args.Error(1)
}

// Update replaces an existing provider.
func (m *MockProvidersCollection) Update(ctx context.Context, provider *models.Provider) error {
	args := m.Called(ctx, provider)
	return args.Error(0)
}

// Delete removes a provider by ID.
func (m *MockProvidersCollection) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// EnsureIndexes creates necessary indexes.
func (m *MockProvidersCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockPromptsCollection is a mock implementation of docdb.PromptsCollection.
type MockPromptsCollection struct {
	mock.Mock
}

// Create inserts a new prompt.
func (m *MockPromptsCollection) Create(ctx context.Context, prompt *models.Prompt) error {
	args := m.Called(ctx, prompt)
	return args.Error(0)
}

// Get retrieves a prompt by ID.
func (m *MockPromptsCollection) Get(ctx context.Context, id string) (*models.Prompt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Prompt), args.Error(1)
}

// List retrieves prompts.
func (m *MockPromptsCollection) List(ctx context.Context, opts *docdb.ListPromptsOptions) ([]*models.Prompt, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Prompt), args.Error(1)
}

// Update replaces an existing prompt.
func (m *MockPromptsCollection) Update(ctx context.Context, prompt *models.Prompt) error {
	args := m.Called(ctx, prompt)
	return args.Error(0)
}

// Delete removes a prompt by ID.
func (m *MockPromptsCollection) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// EnsureIndexes creates necessary indexes.
func (m *MockPromptsCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockUsageCollection is a mock implementation of docdb.UsageCollection.
type MockUsageCollection struct {
	mock.Mock
}

// Get retrieves a tenant's usage record.
func (m *MockUsageCollection) Get(ctx context.Context, organizationID string) (*models.UsageRecord, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageRecord), args.Error(1)
}

// Save inserts or replaces a tenant's usage record.
func (m *MockUsageCollection) Save(ctx context.Context, record *models.UsageRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// MockDocDBClient is a mock implementation of docdb.Client.
type MockDocDBClient struct {
	mock.Mock
	providers *MockProvidersCollection
	prompts   *MockPromptsCollection
	usage     *MockUsageCollection
}

// NewMockDocDBClient creates a new MockDocDBClient with mock collections.
func NewMockDocDBClient() *MockDocDBClient {
	return &MockDocDBClient{
		providers: &MockProvidersCollection{},
		prompts:   &MockPromptsCollection{},
		usage:     &MockUsageCollection{},
	}
}

// Providers returns the providers collection.
func (m *MockDocDBClient) Providers() docdb.ProvidersCollection {
	return m.providers
}

// Prompts returns the prompts collection.
func (m *MockDocDBClient) Prompts() docdb.PromptsCollection {
	return m.prompts
}

// Usage returns the usage collection.
func (m *MockDocDBClient) Usage() docdb.UsageCollection {
	return m.usage
}

// GetMockProviders returns the mock providers collection for setting expectations.
func (m *MockDocDBClient) GetMockProviders() *MockProvidersCollection {
	return m.providers
}

// GetMockPrompts returns the mock prompts collection for setting expectations.
func (m *MockDocDBClient) GetMockPrompts() *MockPromptsCollection {
	return m.prompts
}

// GetMockUsage returns the mock usage collection for setting expectations.
func (m *MockDocDBClient) GetMockUsage() *MockUsageCollection {
	return m.usage
}

// EnsureIndexes creates necessary indexes.
func (m *MockDocDBClient) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Ping verifies the database connection.
func (m *MockDocDBClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the database connection.
func (m *MockDocDBClient) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
