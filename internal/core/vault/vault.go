// Package vault defines how the service resolves secrets: the credential
// encryption key, the token signing secret and provider API keys named in
// seed files.
package vault

import (
	"context"
	"errors"
	"strings"
)

// ErrSecretNotFound is returned when a secret URI resolves to nothing.
var ErrSecretNotFound = errors.New("secret not found")

// Type is the scheme of a secret URI.
type Type string

// TypeDotEnv resolves secrets from the environment and .env files.
const TypeDotEnv Type = "dotenv"

// URI builds the secret URI for name, e.g. dotenv://JWT_SECRET.
func URI(t Type, name string) string {
	return string(t) + "://" + name
}

// SecretName strips the scheme from a secret URI.
func SecretName(uri string) string {
	if _, name, ok := strings.Cut(uri, "://"); ok {
		return name
	}
	return uri
}

// Vault is a secret backend.
type Vault interface {
	// GetSecret returns the value behind uri or ErrSecretNotFound.
	GetSecret(ctx context.Context, uri string) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Client is the secret lookup used by the rest of the service.
type Client interface {
	// GetSecret resolves uri. With useCache set, a value resolved earlier is
	// returned without consulting the backing vault.
	GetSecret(ctx context.Context, uri string, useCache bool) (string, error)
	Ping(ctx context.Context) error
	Close() error
}
