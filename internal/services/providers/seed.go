package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/opsbridge/control-service/internal/core/vault"
	"github.com/opsbridge/control-service/internal/domain/models"
)

// SeedFile is the YAML layout of a provider catalog seed.
type SeedFile struct {
	Providers []SeedProvider `yaml:"providers"`
}

// SeedProvider describes one provider in a seed file. Fallback names another
// provider in the same file.
type SeedProvider struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Type         string         `yaml:"type"`
	Endpoint     string         `yaml:"endpoint"`
	APIKey       string         `yaml:"apiKey"`
	APIKeySecret string         `yaml:"apiKeySecret"`
	Active       *bool          `yaml:"active"`
	DefaultModel string         `yaml:"defaultModel"`
	Fallback     string         `yaml:"fallback"`
	RateLimits   SeedRateLimits `yaml:"rateLimits"`
	Models       []SeedModel    `yaml:"models"`
}

// SeedRateLimits mirrors models.RateLimits for YAML.
type SeedRateLimits struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	TokensPerMinute   int `yaml:"tokensPerMinute"`
}

// SeedModel describes one model in a seed file.
type SeedModel struct {
	ID            string  `yaml:"id"`
	DisplayName   string  `yaml:"displayName"`
	ContextWindow int     `yaml:"contextWindow"`
	InputCost     float64 `yaml:"inputCostPer1k"`
	OutputCost    float64 `yaml:"outputCostPer1k"`
	Code          bool    `yaml:"codeGeneration"`
	Vision        bool    `yaml:"imageAnalysis"`
	Priority      int     `yaml:"priority"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse provider seed: %w", err)
	}
	return &seed, nil
}

// SeedFromFile loads a YAML seed file and registers every provider whose
// name is not already present. It returns the number created.
func (r *Registry) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read provider seed: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return 0, err
	}
	return r.Seed(ctx, seed)
}

// Seed registers providers from a parsed seed.
func (r *Registry) Seed(ctx context.Context, seed *SeedFile) (int, error) {
	existing, err := r.List(ctx, false)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]string, len(existing))
	for _, p := range existing {
		byName[p.Name] = p.ID
	}

	created := 0
	for _, sp := range seed.Providers {
		if _, ok := byName[sp.Name]; ok {
			continue
		}

		p, err := r.fromSeed(ctx, sp)
		if err != nil {
			return created, fmt.Errorf("provider %s: %w", sp.Name, err)
		}
		out, err := r.Create(ctx, p)
		if err != nil {
			return created, fmt.Errorf("provider %s: %w", sp.Name, err)
		}
		byName[sp.Name] = out.ID
		created++
	}

	// Fallback links are wired once every provider has an id.
	for _, sp := range seed.Providers {
		if sp.Fallback == "" {
			continue
		}
		targetID, ok := byName[sp.Fallback]
		if !ok {
			log.Warn().Str("provider", sp.Name).Str("fallback", sp.Fallback).Msg("seed fallback provider not found")
			continue
		}
		id := byName[sp.Name]
		if _, err := r.Update(ctx, id, &Update{FallbackProvider: &targetID}); err != nil {
			return created, fmt.Errorf("provider %s fallback: %w", sp.Name, err)
		}
	}

	return created, nil
}

func (r *Registry) fromSeed(ctx context.Context, sp SeedProvider) (*models.Provider, error) {
	apiKey := sp.APIKey
	if sp.APIKeySecret != "" {
		if r.vault == nil {
			return nil, fmt.Errorf("apiKeySecret set but no vault configured")
		}
		secret, err := r.vault.GetSecret(ctx, vault.URI(vault.TypeDotEnv, sp.APIKeySecret), false)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve apiKeySecret: %w", err)
		}
		apiKey = secret
	}

	active := true
	if sp.Active != nil {
		active = *sp.Active
	}

	p := &models.Provider{
		Name:         sp.Name,
		Description:  sp.Description,
		Type:         models.ProviderType(sp.Type),
		Endpoint:     sp.Endpoint,
		APIKey:       apiKey,
		IsActive:     active,
		DefaultModel: sp.DefaultModel,
		RateLimits: models.RateLimits{
			RequestsPerMinute: sp.RateLimits.RequestsPerMinute,
			TokensPerMinute:   sp.RateLimits.TokensPerMinute,
		},
	}
	for _, m := range sp.Models {
		p.Models = append(p.Models, models.Model{
			ModelID:       m.ID,
			DisplayName:   m.DisplayName,
			ContextWindow: m.ContextWindow,
			CostPer1kTokens: models.TokenCost{
				Input:  m.InputCost,
				Output: m.OutputCost,
			},
			Capabilities: models.ModelCapabilities{
				TextGeneration: true,
				CodeGeneration: m.Code,
				ImageAnalysis:  m.Vision,
			},
			Priority: m.Priority,
		})
	}
	if p.DefaultModel == "" && len(p.Models) > 0 {
		p.DefaultModel = p.Models[0].ModelID
	}
	return p, nil
}
