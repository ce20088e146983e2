// Package providers manages the catalog of upstream LLM providers.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/opsbridge/control-service/internal/core/docdb"
	"github.com/opsbridge/control-service/internal/core/events"
	"github.com/opsbridge/control-service/internal/core/vault"
	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/pkg/clock"
	"github.com/opsbridge/control-service/internal/pkg/encryption"
)

// Config holds the configuration for the provider registry.
type Config struct {
	Collection docdb.ProvidersCollection
	Encryptor  encryption.Encryptor
	Vault      vault.Client // optional, resolves apiKeySecret in seed files
	Clock      clock.Clock
}

// Registry is the provider catalog. Credentials are sealed with the
// encryptor before they reach the store and opened on read.
type Registry struct {
	collection docdb.ProvidersCollection
	encryptor  encryption.Encryptor
	vault      vault.Client
	clock      clock.Clock
}

// Update carries optional provider changes.
type Update struct {
	Name             *string              `json:"name,omitempty"`
	Description      *string              `json:"description,omitempty"`
	Type             *models.ProviderType `json:"type,omitempty"`
	Endpoint         *string              `json:"endpoint,omitempty"`
	APIKey           *string              `json:"apiKey,omitempty"`
	IsActive         *bool                `json:"isActive,omitempty"`
	Models           []models.Model       `json:"models,omitempty"`
	DefaultModel     *string              `json:"defaultModel,omitempty"`
	RateLimits       *models.RateLimits   `json:"rateLimits,omitempty"`
	FallbackProvider *string              `json:"fallbackProvider,omitempty"`
}

// NewRegistry creates a new provider registry.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Collection == nil {
		return nil, fmt.Errorf("providers collection is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.SystemUTC{}
	}

	return &Registry{
		collection: cfg.Collection,
		encryptor:  cfg.Encryptor,
		vault:      cfg.Vault,
		clock:      clk,
	}, nil
}

// Get returns the provider with a plaintext credential, or nil if absent.
func (r *Registry) Get(ctx context.Context, id string) (*models.Provider, error) {
	if id == "" {
		return nil, nil
	}
	p, err := r.collection.Get(ctx, id)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to load provider", err)
	}
	if p == nil {
		return nil, nil
	}
	if err := r.open(p); err != nil {
		return nil, err
	}
	return p, nil
}

// MustGet is Get that reports an absent provider as NotFound.
func (r *Registry) MustGet(ctx context.Context, id string) (*models.Provider, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainerrors.NewNotFoundError("provider", id)
	}
	return p, nil
}

// GetActive returns the provider only if it exists and is active.
func (r *Registry) GetActive(ctx context.Context, id string) (*models.Provider, error) {
	p, err := r.Get(ctx, id)
	if err != nil || p == nil || !p.IsActive {
		return nil, err
	}
	return p, nil
}

// FirstActive returns the earliest-registered active provider, or nil.
func (r *Registry) FirstActive(ctx context.Context) (*models.Provider, error) {
	list, err := r.collection.List(ctx, &docdb.ListProvidersOptions{ActiveOnly: true})
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list providers", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	p := list[0]
	if err := r.open(p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns providers in registration order. Credentials stay sealed.
func (r *Registry) List(ctx context.Context, activeOnly bool) ([]*models.Provider, error) {
	list, err := r.collection.List(ctx, &docdb.ListProvidersOptions{ActiveOnly: activeOnly})
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list providers", err)
	}
	return list, nil
}

// Statuses returns the public status view of every provider.
func (r *Registry) Statuses(ctx context.Context) ([]models.ProviderStatus, error) {
	list, err := r.List(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]models.ProviderStatus, 0, len(list))
	for _, p := range list {
		out = append(out, p.Status())
	}
	return out, nil
}

// State returns the snapshot pushed to subscribers of the llm topic: one
// provider when params carry a providerId, otherwise every provider.
func (r *Registry) State(ctx context.Context, params events.Params) (interface{}, bool) {
	if id := params["providerId"]; id != "" {
		p, err := r.collection.Get(ctx, id)
		if err != nil || p == nil {
			return nil, false
		}
		return p.Status(), true
	}
	statuses, err := r.Statuses(ctx)
	if err != nil {
		return nil, false
	}
	return statuses, true
}

// Create validates and stores a new provider. p.APIKey is plaintext.
func (r *Registry) Create(ctx context.Context, p *models.Provider) (*models.Provider, error) {
	if p == nil {
		return nil, domainerrors.NewValidationError("provider is required", "")
	}

	p.ID = uuid.NewString()
	p.ApplyDefaults()
	if err := r.validate(ctx, p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, domainerrors.NewValidationError("apiKey is required", "")
	}

	now := r.clock.NowUTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	stored := *p
	if err := r.seal(&stored); err != nil {
		return nil, err
	}
	if err := r.collection.Create(ctx, &stored); err != nil {
		return nil, domainerrors.NewInternalError("failed to create provider", err)
	}
	return p, nil
}

// Update merges changes into an existing provider and revalidates it.
func (r *Registry) Update(ctx context.Context, id string, u *Update) (*models.Provider, error) {
	if u == nil {
		return nil, domainerrors.NewValidationError("update is required", "")
	}
	p, err := r.MustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Type != nil {
		p.Type = *u.Type
	}
	if u.Endpoint != nil {
		p.Endpoint = *u.Endpoint
	}
	if u.APIKey != nil && *u.APIKey != "" {
		p.APIKey = *u.APIKey
	}
	if u.IsActive != nil {
		p.IsActive = *u.IsActive
	}
	if u.Models != nil {
		p.Models = u.Models
	}
	if u.DefaultModel != nil {
		p.DefaultModel = *u.DefaultModel
	}
	if u.RateLimits != nil {
		p.RateLimits = *u.RateLimits
	}
	if u.FallbackProvider != nil {
		p.FallbackProvider = *u.FallbackProvider
	}

	p.ApplyDefaults()
	if err := r.validate(ctx, p); err != nil {
		return nil, err
	}
	p.UpdatedAt = r.clock.NowUTC()

	stored := *p
	if err := r.seal(&stored); err != nil {
		return nil, err
	}
	if err := r.collection.Update(ctx, &stored); err != nil {
		if errors.Is(err, docdb.ErrNotFound) {
			return nil, domainerrors.NewNotFoundError("provider", id)
		}
		return nil, domainerrors.NewInternalError("failed to update provider", err)
	}
	return p, nil
}

// Delete removes a provider that no other provider falls back to.
// Tenant usage records are unaffected.
func (r *Registry) Delete(ctx context.Context, id string) error {
	list, err := r.List(ctx, false)
	if err != nil {
		return err
	}
	for _, other := range list {
		if other.ID != id && other.FallbackProvider == id {
			return domainerrors.NewConflictError("provider is a fallback target", other.Name)
		}
	}

	if err := r.collection.Delete(ctx, id); err != nil {
		if errors.Is(err, docdb.ErrNotFound) {
			return domainerrors.NewNotFoundError("provider", id)
		}
		return domainerrors.NewInternalError("failed to delete provider", err)
	}
	return nil
}

func (r *Registry) validate(ctx context.Context, p *models.Provider) error {
	if strings.TrimSpace(p.Name) == "" {
		return domainerrors.NewValidationError("name is required", "")
	}
	if strings.TrimSpace(p.Endpoint) == "" {
		return domainerrors.NewValidationError("endpoint is required", "")
	}
	if len(p.Models) == 0 {
		return domainerrors.NewValidationError("at least one model is required", "")
	}
	seen := make(map[string]bool, len(p.Models))
	for _, m := range p.Models {
		if m.ModelID == "" {
			return domainerrors.NewValidationError("modelId is required", "")
		}
		if seen[m.ModelID] {
			return domainerrors.NewValidationError("duplicate modelId", m.ModelID)
		}
		seen[m.ModelID] = true
	}
	if p.FindModel(p.DefaultModel) == nil {
		return domainerrors.NewValidationError("defaultModel must be one of the provider's models", p.DefaultModel)
	}
	if p.FallbackProvider != "" {
		if p.FallbackProvider == p.ID {
			return domainerrors.NewValidationError("provider cannot be its own fallback", p.ID)
		}
		target, err := r.collection.Get(ctx, p.FallbackProvider)
		if err != nil {
			return domainerrors.NewInternalError("failed to load fallback provider", err)
		}
		if target == nil {
			return domainerrors.NewValidationError("fallback provider not found", p.FallbackProvider)
		}
	}
	return nil
}

func (r *Registry) seal(p *models.Provider) error {
	sealed, err := r.encryptor.EncryptString(p.APIKey)
	if err != nil {
		return domainerrors.NewInternalError("failed to encrypt provider credential", err)
	}
	p.APIKey = sealed
	return nil
}

func (r *Registry) open(p *models.Provider) error {
	if p.APIKey == "" {
		return nil
	}
	plain, err := r.encryptor.DecryptString(p.APIKey)
	if err != nil {
		return domainerrors.NewInternalError("failed to decrypt provider credential", err)
	}
	p.APIKey = plain
	return nil
}
