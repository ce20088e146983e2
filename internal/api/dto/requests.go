// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"github.com/opsbridge/control-service/internal/domain/models"
)

// QueryRequest is the body of POST /llm/query. Either promptId or
// promptContent must be set.
type QueryRequest struct {
	PromptID      string            `json:"promptId,omitempty"`
	PromptContent string            `json:"promptContent,omitempty"`
	ProviderID    string            `json:"providerId,omitempty"`
	ModelID       string            `json:"modelId,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty" binding:"omitempty,min=0,max=2"`
	MaxTokens     int               `json:"maxTokens,omitempty" binding:"omitempty,min=1"`
	SystemMessage string            `json:"systemMessage,omitempty"`
	Variables     map[string]string `json:"variables,omitempty"`
}

// CreateProviderRequest is the body of POST /llm/providers.
type CreateProviderRequest struct {
	Name             string              `json:"name" binding:"required"`
	Description      string              `json:"description,omitempty"`
	Type             models.ProviderType `json:"type,omitempty"`
	Endpoint         string              `json:"endpoint" binding:"required"`
	APIKey           string              `json:"apiKey" binding:"required"`
	IsActive         *bool               `json:"isActive,omitempty"`
	Models           []models.Model      `json:"models" binding:"required,min=1"`
	DefaultModel     string              `json:"defaultModel,omitempty"`
	RateLimits       *models.RateLimits  `json:"rateLimits,omitempty"`
	FallbackProvider string              `json:"fallbackProvider,omitempty"`
}

// ToModel converts the request to a provider. Providers are active unless
// isActive is false.
func (r *CreateProviderRequest) ToModel() *models.Provider {
	p := &models.Provider{
		Name:             r.Name,
		Description:      r.Description,
		Type:             r.Type,
		Endpoint:         r.Endpoint,
		APIKey:           r.APIKey,
		IsActive:         r.IsActive == nil || *r.IsActive,
		Models:           r.Models,
		DefaultModel:     r.DefaultModel,
		FallbackProvider: r.FallbackProvider,
	}
	if r.RateLimits != nil {
		p.RateLimits = *r.RateLimits
	}
	return p
}

// TestProviderRequest is the optional body of POST /llm/providers/:id/test.
type TestProviderRequest struct {
	ModelID string `json:"modelId,omitempty"`
}

// CreatePromptRequest is the body of POST /llm/prompts. System prompts are
// shared by every tenant and may only be created by super admins.
type CreatePromptRequest struct {
	Name        string                `json:"name" binding:"required"`
	Description string                `json:"description,omitempty"`
	Content     string                `json:"content" binding:"required"`
	Category    models.PromptCategory `json:"category,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
	IsActive    *bool                 `json:"isActive,omitempty"`
	System      bool                  `json:"system,omitempty"`
}

// UpdatePromptRequest is the body of PUT /llm/prompts/:id.
type UpdatePromptRequest struct {
	Name         *string                `json:"name,omitempty"`
	Description  *string                `json:"description,omitempty"`
	Content      *string                `json:"content,omitempty"`
	Category     *models.PromptCategory `json:"category,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	IsActive     *bool                  `json:"isActive,omitempty"`
	ChangeReason string                 `json:"changeReason,omitempty"`
}

// CreatePromptVersionRequest is the body of POST /llm/prompts/:id/versions.
type CreatePromptVersionRequest struct {
	Content      string `json:"content" binding:"required"`
	ChangeReason string `json:"changeReason,omitempty"`
}

// StartSessionRequest is the body of POST /monitoring/automation/sessions.
type StartSessionRequest struct {
	SessionID   string `json:"sessionId,omitempty"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description,omitempty"`
}

// PublishEventRequest is the body of POST /monitoring/events.
type PublishEventRequest struct {
	Topic  string            `json:"topic" binding:"required"`
	Params map[string]string `json:"params,omitempty"`
	Data   interface{}       `json:"data" binding:"required"`
}
