// Package encryption seals provider credentials and session mirror snapshots
// with AES-256-GCM. Sealed values carry a version prefix so readers can tell
// them apart from plaintext.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

const (
	sealedPrefix = "v1:"
	plainPrefix  = "plain:"
)

// ErrMalformed is returned for input that is not a sealed value.
var ErrMalformed = errors.New("malformed ciphertext")

// Encryptor seals and opens values.
type Encryptor interface {
	// Encrypt seals plaintext.
	Encrypt(plaintext []byte) (string, error)

	// Decrypt opens a value produced by Encrypt.
	Decrypt(ciphertext string) ([]byte, error)

	// EncryptString is Encrypt for strings.
	EncryptString(plaintext string) (string, error)

	// DecryptString is Decrypt for strings.
	DecryptString(ciphertext string) (string, error)
}

// Sealed reports whether s was produced by an AESEncryptor.
func Sealed(s string) bool {
	return strings.HasPrefix(s, sealedPrefix)
}

// ParseKey accepts a 32-byte key as base64 (standard or URL alphabet), hex,
// or raw text.
func ParseKey(key string) ([]byte, error) {
	candidates := []func(string) ([]byte, error){
		base64.StdEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
		hex.DecodeString,
	}
	for _, decode := range candidates {
		if b, err := decode(key); err == nil && len(b) == KeySize {
			return b, nil
		}
	}
	if len(key) == KeySize {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
}

// FromKey returns an AES encryptor for key, or a NoOpEncryptor when key is
// empty. The bool reports whether real encryption is in effect.
func FromKey(key string) (Encryptor, bool, error) {
	if key == "" {
		return NewNoOpEncryptor(), false, nil
	}
	enc, err := NewAESEncryptor(key)
	if err != nil {
		return nil, false, err
	}
	return enc, true, nil
}

// AESEncryptor implements Encryptor using AES-256-GCM. Output is
// "v1:" + base64url(nonce || ciphertext).
type AESEncryptor struct {
	gcm cipher.AEAD
}

// NewAESEncryptor creates a new AES-256-GCM encryptor.
func NewAESEncryptor(key string) (*AESEncryptor, error) {
	keyBytes, err := ParseKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AESEncryptor{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *AESEncryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed value.
func (e *AESEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if !Sealed(ciphertext) {
		return nil, ErrMalformed
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize+e.gcm.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}
	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptString implements Encryptor.
func (e *AESEncryptor) EncryptString(plaintext string) (string, error) {
	return e.Encrypt([]byte(plaintext))
}

// DecryptString implements Encryptor.
func (e *AESEncryptor) DecryptString(ciphertext string) (string, error) {
	plaintext, err := e.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GenerateKey returns a random base64-encoded key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// NoOpEncryptor stores values unprotected under a "plain:" prefix. It is
// used when no encryption key is configured.
type NoOpEncryptor struct{}

// NewNoOpEncryptor creates a new no-operation encryptor.
func NewNoOpEncryptor() *NoOpEncryptor {
	return &NoOpEncryptor{}
}

// Encrypt implements Encryptor.
func (e *NoOpEncryptor) Encrypt(plaintext []byte) (string, error) {
	return plainPrefix + base64.RawURLEncoding.EncodeToString(plaintext), nil
}

// Decrypt implements Encryptor.
func (e *NoOpEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, plainPrefix) {
		return nil, ErrMalformed
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, plainPrefix))
}

// EncryptString implements Encryptor.
func (e *NoOpEncryptor) EncryptString(plaintext string) (string, error) {
	return e.Encrypt([]byte(plaintext))
}

// DecryptString implements Encryptor.
func (e *NoOpEncryptor) DecryptString(ciphertext string) (string, error) {
	plaintext, err := e.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
