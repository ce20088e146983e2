package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/opsbridge/control-service/internal/core/cache"
)

var _ cache.Client = (*MockCacheClient)(nil)

// MockCacheClient is a testify mock of cache.Client.
type MockCacheClient struct {
	mock.Mock
}

// NewMockCacheClient creates a new MockCacheClient.
func NewMockCacheClient() *MockCacheClient {
	return &MockCacheClient{}
}

func (m *MockCacheClient) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockCacheClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *MockCacheClient) Delete(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCacheClient) Close() error {
	return m.Called().Error(0)
}
