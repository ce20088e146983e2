package models

import "time"

// PromptCategory groups prompts by the area they serve.
type PromptCategory string

const (
	PromptCategoryDevelopment    PromptCategory = "development"
	PromptCategorySupport        PromptCategory = "support"
	PromptCategoryInfrastructure PromptCategory = "infrastructure"
	PromptCategoryGeneral        PromptCategory = "general"
)

// Valid reports whether c is a known category.
func (c PromptCategory) Valid() bool {
	switch c {
	case PromptCategoryDevelopment, PromptCategorySupport, PromptCategoryInfrastructure, PromptCategoryGeneral:
		return true
	}
	return false
}

// Prompt is a stored template with version history and usage metrics.
type Prompt struct {
	ID             string          `json:"id" bson:"_id"`
	Name           string          `json:"name" bson:"name"`
	Description    string          `json:"description,omitempty" bson:"description,omitempty"`
	Content        string          `json:"content" bson:"content"`
	Category       PromptCategory  `json:"category" bson:"category"`
	Tags           []string        `json:"tags,omitempty" bson:"tags,omitempty"`
	Version        int             `json:"version" bson:"version"`
	OrganizationID string          `json:"organizationId,omitempty" bson:"organizationId,omitempty"`
	IsActive       bool            `json:"isActive" bson:"isActive"`
	Metrics        PromptMetrics   `json:"metrics" bson:"metrics"`
	History        []PromptVersion `json:"history" bson:"history"`
	CreatedBy      string          `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// PromptMetrics are rolling usage statistics. The token and response time
// averages cover successful invocations only.
type PromptMetrics struct {
	UsageCount          int64   `json:"usageCount" bson:"usageCount"`
	SuccessCount        int64   `json:"successCount" bson:"successCount"`
	SuccessRate         float64 `json:"successRate" bson:"successRate"`
	AverageTokens       float64 `json:"averageTokens" bson:"averageTokens"`
	AverageResponseTime float64 `json:"averageResponseTime" bson:"averageResponseTime"`
}

// PromptVersion is a prior content revision.
type PromptVersion struct {
	Version      int       `json:"version" bson:"version"`
	Content      string    `json:"content" bson:"content"`
	ChangedAt    time.Time `json:"changedAt" bson:"changedAt"`
	ChangedBy    string    `json:"changedBy,omitempty" bson:"changedBy,omitempty"`
	ChangeReason string    `json:"changeReason,omitempty" bson:"changeReason,omitempty"`
}

// IsSystem reports whether the prompt is shared across tenants.
func (p *Prompt) IsSystem() bool {
	return p.OrganizationID == ""
}

// VisibleTo reports whether a tenant may read the prompt.
func (p *Prompt) VisibleTo(organizationID string) bool {
	return p.IsSystem() || p.OrganizationID == organizationID
}

// ReplaceContent bumps the version and archives the previous content.
func (p *Prompt) ReplaceContent(content, changedBy, reason string, now time.Time) {
	p.History = append(p.History, PromptVersion{
		Version:      p.Version,
		Content:      p.Content,
		ChangedAt:    now,
		ChangedBy:    changedBy,
		ChangeReason: reason,
	})
	p.Content = content
	p.Version++
	p.UpdatedAt = now
}

// FindVersion returns the archived revision with the given number, or nil.
func (p *Prompt) FindVersion(version int) *PromptVersion {
	for i := range p.History {
		if p.History[i].Version == version {
			return &p.History[i]
		}
	}
	return nil
}

// RecordMetrics folds one invocation into the rolling statistics. Failures
// count toward the usage count and success rate but leave the averages alone.
func (m *PromptMetrics) RecordMetrics(success bool, tokens int, responseTimeMs int64) {
	m.UsageCount++
	if success {
		prev := float64(m.SuccessCount)
		m.SuccessCount++
		n := float64(m.SuccessCount)
		m.AverageTokens = (m.AverageTokens*prev + float64(tokens)) / n
		m.AverageResponseTime = (m.AverageResponseTime*prev + float64(responseTimeMs)) / n
	}
	m.SuccessRate = float64(m.SuccessCount) / float64(m.UsageCount)
}
