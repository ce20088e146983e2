package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/opsbridge/control-service/internal/core/vault"
)

var _ vault.Client = (*MockVaultClient)(nil)

// MockVaultClient is a testify mock of vault.Client.
type MockVaultClient struct {
	mock.Mock
}

// NewMockVaultClient creates a new MockVaultClient.
func NewMockVaultClient() *MockVaultClient {
	return &MockVaultClient{}
}

func (m *MockVaultClient) GetSecret(ctx context.Context, uri string, useCache bool) (string, error) {
	args := m.Called(ctx, uri, useCache)
	return args.String(0), args.Error(1)
}

func (m *MockVaultClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockVaultClient) Close() error {
	return m.Called().Error(0)
}
