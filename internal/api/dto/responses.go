package dto

import (
	"github.com/opsbridge/control-service/internal/domain/models"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ProvidersResponse lists providers.
type ProvidersResponse struct {
	Providers []*models.Provider `json:"providers"`
	Total     int                `json:"total"`
}

// ProviderStatusesResponse lists the public status of every provider.
type ProviderStatusesResponse struct {
	Providers []models.ProviderStatus `json:"providers"`
}

// PromptsResponse lists prompts.
type PromptsResponse struct {
	Prompts []*models.Prompt `json:"prompts"`
	Total   int              `json:"total"`
}

// SessionsResponse lists automation sessions.
type SessionsResponse struct {
	Sessions []*models.AutomationSession `json:"sessions"`
	Total    int                         `json:"total"`
}

// UsageResponse is the tenant's usage record with derived figures.
type UsageResponse struct {
	*models.UsageRecord
	CurrentMonthCost float64 `json:"currentMonthCost"`
	LimitReached     bool    `json:"limitReached"`
}

// PublishEventResponse reports how many connections received an event.
type PublishEventResponse struct {
	Delivered int `json:"delivered"`
}
