// Package events defines the realtime topics and the publisher interface used
// by services to fan events out to connected dashboards.
package events

import "encoding/json"

// Topics known to the access policy.
const (
	TopicAutomation  = "automation"
	TopicLLM         = "llm"
	TopicDevelopment = "development"
	TopicSupport     = "support"
	TopicSystem      = "system"
)

// Event names carried in the data payload.
const (
	SessionStarted      = "session_started"
	SessionUpdated      = "session_updated"
	SessionEnded        = "session_ended"
	LLMRequestCompleted = "llm_request_completed"
	LLMProviderFallback = "llm_provider_fallback"
)

// Params scopes a topic, e.g. {"organizationId": "org-a"}.
type Params map[string]string

// Key serializes params deterministically. Nil and empty params share a key.
func (p Params) Key() string {
	if len(p) == 0 {
		return "{}"
	}
	data, _ := json.Marshal(map[string]string(p))
	return string(data)
}

// OrganizationID returns the organizationId param.
func (p Params) OrganizationID() string {
	return p["organizationId"]
}

// Publisher delivers an event to every subscriber of (topic, params) and
// returns how many were reached.
type Publisher interface {
	PublishEvent(topic string, params Params, data interface{}) int
}

// Noop discards events.
type Noop struct{}

// PublishEvent implements Publisher.
func (Noop) PublishEvent(string, Params, interface{}) int { return 0 }
