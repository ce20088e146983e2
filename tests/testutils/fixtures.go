package testutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/pkg/auth"
)

// TestJWTSecret signs tokens in tests.
const TestJWTSecret = "test-jwt-secret"

// TestEncryptionKey is a valid 32-byte AES key.
const TestEncryptionKey = "test-key-for-aes-256-gcm-00000!!"

// NewTestVerifier returns a verifier over TestJWTSecret.
func NewTestVerifier(t *testing.T) *auth.HMACVerifier {
	t.Helper()
	v, err := auth.NewHMACVerifier(TestJWTSecret)
	require.NoError(t, err)
	return v
}

// IssueToken signs a one-hour token for the given principal.
func IssueToken(t *testing.T, v *auth.HMACVerifier, userID, organizationID, role string) string {
	t.Helper()
	token, err := v.Issue(userID, organizationID, role, time.Hour)
	require.NoError(t, err)
	return token
}

// BearerHeader returns the Authorization header for token.
func BearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// NewTestProvider returns an active OpenAI-style provider with two models
// pointing at endpoint.
func NewTestProvider(name, endpoint string) *models.Provider {
	return &models.Provider{
		Name:         name,
		Type:         models.ProviderTypeOpenAI,
		Endpoint:     endpoint,
		APIKey:       "sk-" + name,
		IsActive:     true,
		DefaultModel: "small",
		Models: []models.Model{
			{ModelID: "small", CostPer1kTokens: models.TokenCost{Input: 0.001, Output: 0.002}},
			{ModelID: "large", CostPer1kTokens: models.TokenCost{Input: 0.01, Output: 0.03}},
		},
	}
}

// NewTestPrompt returns an active prompt owned by organizationID. An empty
// organization makes it a system prompt.
func NewTestPrompt(organizationID, content string) *models.Prompt {
	return &models.Prompt{
		Name:           "triage",
		Content:        content,
		Category:       models.PromptCategorySupport,
		OrganizationID: organizationID,
		IsActive:       true,
	}
}
