// Package prompts stores prompt templates with version history and usage
// metrics, and renders them for the LLM router.
package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsbridge/control-service/internal/core/cache"
	"github.com/opsbridge/control-service/internal/core/docdb"
	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/pkg/clock"
	"github.com/opsbridge/control-service/internal/pkg/keymutex"
)

// DefaultCacheTTL is how long a prompt stays in the read-through cache.
const DefaultCacheTTL = 5 * time.Minute

// Config holds the configuration for the prompt service.
type Config struct {
	Collection  docdb.PromptsCollection
	CacheClient cache.Client // optional
	CacheTTL    time.Duration
	Clock       clock.Clock
}

// Service manages stored prompts.
type Service struct {
	collection docdb.PromptsCollection
	cache      cache.Client
	ttl        time.Duration
	clock      clock.Clock
	locks      *keymutex.KeyMutex
}

// Update carries optional prompt changes. A Content change creates a new version.
type Update struct {
	Name         *string                `json:"name,omitempty"`
	Description  *string                `json:"description,omitempty"`
	Content      *string                `json:"content,omitempty"`
	Category     *models.PromptCategory `json:"category,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	IsActive     *bool                  `json:"isActive,omitempty"`
	ChangeReason string                 `json:"changeReason,omitempty"`
}

// NewService creates a new prompt service.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Collection == nil {
		return nil, fmt.Errorf("prompts collection is required")
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.SystemUTC{}
	}

	return &Service{
		collection: cfg.Collection,
		cache:      cfg.CacheClient,
		ttl:        ttl,
		clock:      clk,
		locks:      keymutex.New(),
	}, nil
}

// CacheKey returns the cache key for a prompt id.
func CacheKey(id string) string {
	return "prompt:" + id
}

// Get returns a prompt by id through the cache, or nil if absent.
func (s *Service) Get(ctx context.Context, id string) (*models.Prompt, error) {
	if cached := s.fromCache(ctx, id); cached != nil {
		return cached, nil
	}

	p, err := s.collection.Get(ctx, id)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to load prompt", err)
	}
	if p != nil {
		s.toCache(ctx, p)
	}
	return p, nil
}

// Resolve returns an active prompt visible to the tenant, or PROMPT_NOT_FOUND.
func (s *Service) Resolve(ctx context.Context, organizationID, id string) (*models.Prompt, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.IsActive || !p.VisibleTo(organizationID) {
		return nil, domainerrors.NewPromptNotFoundError(id)
	}
	return p, nil
}

// List returns prompts matching the options.
func (s *Service) List(ctx context.Context, opts *docdb.ListPromptsOptions) ([]*models.Prompt, error) {
	list, err := s.collection.List(ctx, opts)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list prompts", err)
	}
	return list, nil
}

// Create stores a new prompt at version 1.
func (s *Service) Create(ctx context.Context, p *models.Prompt) (*models.Prompt, error) {
	if p == nil {
		return nil, domainerrors.NewValidationError("prompt is required", "")
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, domainerrors.NewValidationError("name is required", "")
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, domainerrors.NewValidationError("content is required", "")
	}
	if p.Category == "" {
		p.Category = models.PromptCategoryGeneral
	}
	if !p.Category.Valid() {
		return nil, domainerrors.NewValidationError("invalid category", string(p.Category))
	}

	now := s.clock.NowUTC()
	p.ID = uuid.NewString()
	p.Version = 1
	p.History = []models.PromptVersion{}
	p.Metrics = models.PromptMetrics{}
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.collection.Create(ctx, p); err != nil {
		return nil, domainerrors.NewInternalError("failed to create prompt", err)
	}
	return p, nil
}

// Update merges changes into a prompt.
func (s *Service) Update(ctx context.Context, id, changedBy string, u *Update) (*models.Prompt, error) {
	if u == nil {
		return nil, domainerrors.NewValidationError("update is required", "")
	}
	if u.Category != nil && !u.Category.Valid() {
		return nil, domainerrors.NewValidationError("invalid category", string(*u.Category))
	}
	if u.Content != nil && strings.TrimSpace(*u.Content) == "" {
		return nil, domainerrors.NewValidationError("content must not be empty", "")
	}

	return s.mutate(ctx, id, func(p *models.Prompt, now time.Time) error {
		if u.Name != nil {
			p.Name = *u.Name
		}
		if u.Description != nil {
			p.Description = *u.Description
		}
		if u.Category != nil {
			p.Category = *u.Category
		}
		if u.Tags != nil {
			p.Tags = u.Tags
		}
		if u.IsActive != nil {
			p.IsActive = *u.IsActive
		}
		if u.Content != nil && *u.Content != p.Content {
			reason := u.ChangeReason
			if reason == "" {
				reason = "content update"
			}
			p.ReplaceContent(*u.Content, changedBy, reason, now)
		}
		p.UpdatedAt = now
		return nil
	})
}

// CreateNewVersion replaces the content, archiving the previous revision.
func (s *Service) CreateNewVersion(ctx context.Context, id, content, changedBy, reason string) (*models.Prompt, error) {
	if strings.TrimSpace(content) == "" {
		return nil, domainerrors.NewValidationError("content must not be empty", "")
	}
	if reason == "" {
		reason = "content update"
	}
	return s.mutate(ctx, id, func(p *models.Prompt, now time.Time) error {
		p.ReplaceContent(content, changedBy, reason, now)
		return nil
	})
}

// RevertToVersion restores an archived revision as a new version.
func (s *Service) RevertToVersion(ctx context.Context, id string, version int, changedBy string) (*models.Prompt, error) {
	return s.mutate(ctx, id, func(p *models.Prompt, now time.Time) error {
		entry := p.FindVersion(version)
		if entry == nil {
			return domainerrors.NewNotFoundError("prompt version", fmt.Sprintf("%s@%d", id, version))
		}
		if changedBy == "" {
			changedBy = p.CreatedBy
		}
		p.ReplaceContent(entry.Content, changedBy, fmt.Sprintf("reverted to version %d", version), now)
		return nil
	})
}

// UpdateMetrics folds one invocation into the prompt's rolling metrics.
func (s *Service) UpdateMetrics(ctx context.Context, id string, success bool, tokens int, responseTimeMs int64) error {
	_, err := s.mutate(ctx, id, func(p *models.Prompt, now time.Time) error {
		p.Metrics.RecordMetrics(success, tokens, responseTimeMs)
		return nil
	})
	return err
}

// Delete removes a prompt.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.collection.Delete(ctx, id); err != nil {
		if errors.Is(err, docdb.ErrNotFound) {
			return domainerrors.NewNotFoundError("prompt", id)
		}
		return domainerrors.NewInternalError("failed to delete prompt", err)
	}
	s.invalidate(ctx, id)
	return nil
}

// mutate runs fn on the stored prompt under its lock and persists the result.
func (s *Service) mutate(ctx context.Context, id string, fn func(p *models.Prompt, now time.Time) error) (*models.Prompt, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.collection.Get(ctx, id)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to load prompt", err)
	}
	if p == nil {
		return nil, domainerrors.NewNotFoundError("prompt", id)
	}

	if err := fn(p, s.clock.NowUTC()); err != nil {
		return nil, err
	}

	if err := s.collection.Update(ctx, p); err != nil {
		if errors.Is(err, docdb.ErrNotFound) {
			return nil, domainerrors.NewNotFoundError("prompt", id)
		}
		return nil, domainerrors.NewInternalError("failed to update prompt", err)
	}
	s.invalidate(ctx, id)
	return p, nil
}

func (s *Service) fromCache(ctx context.Context, id string) *models.Prompt {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, CacheKey(id))
	if err != nil {
		log.Warn().Err(err).Str("prompt_id", id).Msg("prompt cache read failed")
		return nil
	}
	if data == nil {
		return nil
	}
	var p models.Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		_, _ = s.cache.Delete(ctx, CacheKey(id))
		return nil
	}
	return &p
}

func (s *Service) toCache(ctx context.Context, p *models.Prompt) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, CacheKey(p.ID), data, s.ttl); err != nil {
		log.Warn().Err(err).Str("prompt_id", p.ID).Msg("prompt cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Delete(ctx, CacheKey(id)); err != nil {
		log.Warn().Err(err).Str("prompt_id", id).Msg("prompt cache invalidation failed")
	}
}
