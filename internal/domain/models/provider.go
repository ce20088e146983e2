// Package models contains domain models for the OpsBridge control service.
package models

import "time"

// ProviderType identifies the upstream API shape spoken by a provider.
type ProviderType string

const (
	ProviderTypeOpenAI      ProviderType = "openai"
	ProviderTypeDeepInfra   ProviderType = "deepinfra"
	ProviderTypeGrok        ProviderType = "grok"
	ProviderTypeAnthropic   ProviderType = "anthropic"
	ProviderTypeHuggingFace ProviderType = "huggingface"
	ProviderTypeGeneric     ProviderType = "generic"
)

// Provider is an upstream LLM API configuration.
type Provider struct {
	ID               string       `json:"id" bson:"_id"`
	Name             string       `json:"name" bson:"name"`
	Description      string       `json:"description,omitempty" bson:"description,omitempty"`
	Type             ProviderType `json:"type,omitempty" bson:"type,omitempty"`
	Endpoint         string       `json:"endpoint" bson:"endpoint"`
	APIKey           string       `json:"-" bson:"apiKey"`
	IsActive         bool         `json:"isActive" bson:"isActive"`
	Models           []Model      `json:"models" bson:"models"`
	DefaultModel     string       `json:"defaultModel" bson:"defaultModel"`
	RateLimits       RateLimits   `json:"rateLimits" bson:"rateLimits"`
	FallbackProvider string       `json:"fallbackProvider,omitempty" bson:"fallbackProvider,omitempty"`
	CreatedAt        time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// Model describes one model offered by a provider.
type Model struct {
	ModelID         string            `json:"modelId" bson:"modelId"`
	DisplayName     string            `json:"displayName" bson:"displayName"`
	ContextWindow   int               `json:"contextWindow" bson:"contextWindow"`
	CostPer1kTokens TokenCost         `json:"costPer1kTokens" bson:"costPer1kTokens"`
	Capabilities    ModelCapabilities `json:"capabilities" bson:"capabilities"`
	Priority        int               `json:"priority" bson:"priority"`
}

// TokenCost holds per-1000-token prices in currency units.
type TokenCost struct {
	Input  float64 `json:"input" bson:"input"`
	Output float64 `json:"output" bson:"output"`
}

// ModelCapabilities lists what a model can be used for.
type ModelCapabilities struct {
	TextGeneration bool `json:"textGeneration" bson:"textGeneration"`
	CodeGeneration bool `json:"codeGeneration" bson:"codeGeneration"`
	ImageAnalysis  bool `json:"imageAnalysis" bson:"imageAnalysis"`
}

// RateLimits is the per-provider request and token budget per minute.
// Zero means unlimited.
type RateLimits struct {
	RequestsPerMinute int `json:"requestsPerMinute" bson:"requestsPerMinute"`
	TokensPerMinute   int `json:"tokensPerMinute" bson:"tokensPerMinute"`
}

// Default values applied to newly registered providers and models.
const (
	DefaultContextWindow     = 4096
	DefaultInputCostPer1k    = 0.01
	DefaultOutputCostPer1k   = 0.03
	DefaultRequestsPerMinute = 60
	DefaultTokensPerMinute   = 40000
)

// FindModel returns the model with the given id, or nil.
func (p *Provider) FindModel(modelID string) *Model {
	for i := range p.Models {
		if p.Models[i].ModelID == modelID {
			return &p.Models[i]
		}
	}
	return nil
}

// HasFallback reports whether the provider points at a fallback target.
func (p *Provider) HasFallback() bool {
	return p.FallbackProvider != ""
}

// ApplyDefaults fills zero-valued model and rate-limit fields.
func (p *Provider) ApplyDefaults() {
	for i := range p.Models {
		m := &p.Models[i]
		if m.ContextWindow == 0 {
			m.ContextWindow = DefaultContextWindow
		}
		if m.CostPer1kTokens == (TokenCost{}) {
			m.CostPer1kTokens = TokenCost{Input: DefaultInputCostPer1k, Output: DefaultOutputCostPer1k}
		}
		if m.DisplayName == "" {
			m.DisplayName = m.ModelID
		}
	}
	if p.RateLimits == (RateLimits{}) {
		p.RateLimits = RateLimits{
			RequestsPerMinute: DefaultRequestsPerMinute,
			TokensPerMinute:   DefaultTokensPerMinute,
		}
	}
}

// ProviderStatus is the public view of a provider published on the llm topic.
type ProviderStatus struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	IsActive     bool     `json:"isActive"`
	DefaultModel string   `json:"defaultModel"`
	Models       []string `json:"models"`
	Fallback     string   `json:"fallbackProvider,omitempty"`
}

// Status builds the public status view of the provider.
func (p *Provider) Status() ProviderStatus {
	ids := make([]string, 0, len(p.Models))
	for _, m := range p.Models {
		ids = append(ids, m.ModelID)
	}
	return ProviderStatus{
		ID:           p.ID,
		Name:         p.Name,
		IsActive:     p.IsActive,
		DefaultModel: p.DefaultModel,
		Models:       ids,
		Fallback:     p.FallbackProvider,
	}
}
