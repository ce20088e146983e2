package realtime

import (
	"github.com/opsbridge/control-service/internal/core/events"
	"github.com/opsbridge/control-service/internal/pkg/auth"
)

// Principal is an authenticated dashboard connection.
type Principal struct {
	ClientID       string `json:"clientId"`
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
}

// Policy decides whether a principal may see a topic.
type Policy interface {
	Allow(p *Principal, topic string, params events.Params) bool
}

// TopicPolicy is the default access policy. Tenant topics need a matching
// organizationId. Anything else, system included, is for super admins only.
type TopicPolicy struct{}

// Allow implements Policy.
func (TopicPolicy) Allow(p *Principal, topic string, params events.Params) bool {
	if p == nil {
		return false
	}
	if p.Role == auth.RoleSuperAdmin {
		return true
	}

	switch topic {
	case events.TopicAutomation, events.TopicLLM, events.TopicDevelopment, events.TopicSupport:
		org := params.OrganizationID()
		return org != "" && org == p.OrganizationID
	default:
		return false
	}
}
