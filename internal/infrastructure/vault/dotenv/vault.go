// Package dotenv resolves secrets from process environment variables and
// optional .env files.
package dotenv

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/opsbridge/control-service/internal/core/vault"
)

var _ vault.Vault = (*Vault)(nil)

// Vault implements vault.Vault. Environment variables take precedence over
// values read from files.
type Vault struct {
	files map[string]string
}

// NewVault creates a vault reading the given .env files. Missing files are
// skipped.
func NewVault(paths ...string) (*Vault, error) {
	files := make(map[string]string)
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, v := range values {
			files[k] = v
		}
	}
	return &Vault{files: files}, nil
}

// GetSecret implements vault.Vault.
func (v *Vault) GetSecret(_ context.Context, uri string) (string, error) {
	name := vault.SecretName(uri)
	if name == "" {
		return "", fmt.Errorf("%w: empty secret name", vault.ErrSecretNotFound)
	}
	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	if value := v.files[name]; value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", vault.ErrSecretNotFound, name)
}

// Ping implements vault.Vault.
func (v *Vault) Ping(context.Context) error {
	return nil
}

// Close implements vault.Vault.
func (v *Vault) Close() error {
	return nil
}
