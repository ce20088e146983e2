package encryption_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsbridge/control-service/internal/pkg/encryption"
)

func TestParseKey_AcceptedEncodings(t *testing.T) {
	raw := "test-key-for-aes-256-gcm-00000!!"
	generated, err := encryption.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name string
		key  string
	}{
		{"raw", raw},
		{"base64", generated},
		{"hex", hex.EncodeToString([]byte(raw))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := encryption.ParseKey(tt.key)
			require.NoError(t, err)
			assert.Len(t, key, encryption.KeySize)
		})
	}

	_, err = encryption.ParseKey("short")
	assert.Error(t, err)
}

func TestAESEncryptor_RoundTripIsSealedAndRandomized(t *testing.T) {
	// Arrange
	enc, err := encryption.NewAESEncryptor("test-key-for-aes-256-gcm-00000!!")
	require.NoError(t, err)

	// Act
	a, err := enc.EncryptString("sk-secret")
	require.NoError(t, err)
	b, err := enc.EncryptString("sk-secret")
	require.NoError(t, err)
	plain, err := enc.DecryptString(a)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", plain)
	assert.True(t, encryption.Sealed(a))
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "sk-secret")
}

func TestAESEncryptor_RejectsTamperedAndForeignInput(t *testing.T) {
	enc, err := encryption.NewAESEncryptor("test-key-for-aes-256-gcm-00000!!")
	require.NoError(t, err)
	other, err := encryption.NewAESEncryptor("another-key-for-aes-256-gcm-00!!")
	require.NoError(t, err)

	sealed, err := enc.EncryptString("payload")
	require.NoError(t, err)

	_, err = other.DecryptString(sealed)
	assert.Error(t, err)

	_, err = enc.DecryptString("sk-plaintext")
	assert.ErrorIs(t, err, encryption.ErrMalformed)

	_, err = enc.DecryptString("v1:AAAA")
	assert.ErrorIs(t, err, encryption.ErrMalformed)

	tampered := []byte(sealed)
	if tampered[8] == 'A' {
		tampered[8] = 'B'
	} else {
		tampered[8] = 'A'
	}
	_, err = enc.DecryptString(string(tampered))
	assert.Error(t, err)
}

func TestFromKey(t *testing.T) {
	enc, secure, err := encryption.FromKey("")
	require.NoError(t, err)
	assert.False(t, secure)
	sealed, err := enc.EncryptString("x")
	require.NoError(t, err)
	assert.False(t, encryption.Sealed(sealed))
	plain, err := enc.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "x", plain)

	_, secure, err = encryption.FromKey("test-key-for-aes-256-gcm-00000!!")
	require.NoError(t, err)
	assert.True(t, secure)

	_, _, err = encryption.FromKey("too-short")
	assert.Error(t, err)
}
