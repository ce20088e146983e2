package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/opsbridge/control-service/internal/core/events"
)

// MockPublisher is a mock implementation of events.Publisher.
type MockPublisher struct {
	mock.Mock
}

// PublishEvent records the event and returns the configured reach.
func (m *MockPublisher) PublishEvent(topic string, params events.Params, data interface{}) int {
	args := m.Called(topic, params, data)
	return args.Int(0)
}
