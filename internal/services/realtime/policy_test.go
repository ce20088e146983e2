package realtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsbridge/control-service/internal/core/events"
	"github.com/opsbridge/control-service/internal/pkg/auth"
	"github.com/opsbridge/control-service/internal/services/realtime"
)

func TestTopicPolicy_Allow(t *testing.T) {
	user := &realtime.Principal{UserID: "u1", OrganizationID: "org-a", Role: auth.RoleUser}
	admin := &realtime.Principal{UserID: "u2", OrganizationID: "org-a", Role: auth.RoleAdmin}
	root := &realtime.Principal{UserID: "u3", OrganizationID: "org-z", Role: auth.RoleSuperAdmin}
	own := events.Params{"organizationId": "org-a"}
	other := events.Params{"organizationId": "org-b"}

	tests := []struct {
		name      string
		principal *realtime.Principal
		topic     string
		params    events.Params
		want      bool
	}{
		{"own tenant automation", user, events.TopicAutomation, own, true},
		{"own tenant llm", user, events.TopicLLM, own, true},
		{"own tenant development", admin, events.TopicDevelopment, own, true},
		{"own tenant support", user, events.TopicSupport, own, true},
		{"other tenant", user, events.TopicAutomation, other, false},
		{"missing organization", user, events.TopicAutomation, nil, false},
		{"system for admin", admin, events.TopicSystem, nil, false},
		{"system for super admin", root, events.TopicSystem, nil, true},
		{"super admin any tenant", root, events.TopicAutomation, other, true},
		{"unknown topic", user, "billing", own, false},
		{"nil principal", nil, events.TopicAutomation, own, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := realtime.TopicPolicy{}.Allow(tt.principal, tt.topic, tt.params)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInbound_TopicParamsStringifiesValues(t *testing.T) {
	msg := &realtime.Inbound{Params: map[string]interface{}{"organizationId": "org-a", "limit": float64(10), "x": nil}}

	params := msg.TopicParams()

	assert.Equal(t, events.Params{"organizationId": "org-a", "limit": "10", "x": ""}, params)
}
