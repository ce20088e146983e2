// Package llm routes completion requests to upstream providers, enforcing
// tenant quotas and following configured fallback links.
package llm

import (
	"context"

	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/services/llm/adapters"
	"github.com/opsbridge/control-service/internal/services/usage"
)

// Defaults applied when a request leaves generation parameters unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// ProviderSource looks up providers with plaintext credentials.
type ProviderSource interface {
	Get(ctx context.Context, id string) (*models.Provider, error)
	FirstActive(ctx context.Context) (*models.Provider, error)
}

// PromptSource resolves stored prompts and records their metrics.
type PromptSource interface {
	Resolve(ctx context.Context, organizationID, id string) (*models.Prompt, error)
	UpdateMetrics(ctx context.Context, id string, success bool, tokens int, responseTimeMs int64) error
}

// UsageLedger is the slice of the usage ledger the router needs.
type UsageLedger interface {
	CheckQuota(ctx context.Context, organizationID string) (*models.UsageRecord, error)
	RecordUsage(ctx context.Context, organizationID string, tokens int64, costMicros int64) (*usage.RecordResult, error)
	RecordFallback(ctx context.Context, organizationID, fromProvider, toProvider, reason string) (*models.UsageAlert, error)
}

// RateGuard enforces per-provider rate limits.
type RateGuard interface {
	Acquire(ctx context.Context, provider *models.Provider) error
	RecordTokens(ctx context.Context, provider *models.Provider, tokens int)
}

// AdapterSource returns the adapter for a provider kind.
type AdapterSource interface {
	For(kind adapters.Kind) adapters.Adapter
}

// Request is a completion request from a tenant. Exactly one of PromptID and
// PromptContent is expected; PromptID wins when both are set.
type Request struct {
	OrganizationID string            `json:"organizationId"`
	UserID         string            `json:"userId,omitempty"`
	PromptID       string            `json:"promptId,omitempty"`
	PromptContent  string            `json:"promptContent,omitempty"`
	ProviderID     string            `json:"providerId,omitempty"`
	ModelID        string            `json:"modelId,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      int               `json:"maxTokens,omitempty"`
	SystemMessage  string            `json:"systemMessage,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
}

// Response is a successful completion.
type Response struct {
	Success        bool           `json:"success"`
	Content        string         `json:"content"`
	Usage          adapters.Usage `json:"usage"`
	Provider       string         `json:"provider"`
	ProviderID     string         `json:"providerId"`
	Model          string         `json:"model"`
	ResponseTimeMs int64          `json:"responseTime"`
	CostMicros     int64          `json:"costMicros"`
	FallbackFrom   []string       `json:"fallbackFrom,omitempty"`
}

// TestResult reports a provider connectivity check.
type TestResult struct {
	Success        bool           `json:"success"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model"`
	Content        string         `json:"content,omitempty"`
	Usage          adapters.Usage `json:"usage"`
	ResponseTimeMs int64          `json:"responseTime"`
	Error          string         `json:"error,omitempty"`
}
