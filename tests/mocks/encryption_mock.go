package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/opsbridge/control-service/internal/pkg/encryption"
)

var _ encryption.Encryptor = (*MockEncryptor)(nil)

// MockEncryptor is a testify mock of encryption.Encryptor. Expectations are
// keyed by method name, so a test sealing strings only sets up EncryptString.
type MockEncryptor struct {
	mock.Mock
}

func (m *MockEncryptor) Encrypt(plaintext []byte) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockEncryptor) Decrypt(sealed string) ([]byte, error) {
	args := m.Called(sealed)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockEncryptor) EncryptString(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockEncryptor) DecryptString(sealed string) (string, error) {
	args := m.Called(sealed)
	return args.String(0), args.Error(1)
}
