package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsbridge/control-service/internal/pkg/auth"
)

func TestHMACVerifier_RoundTrip(t *testing.T) {
	// Arrange
	v, err := auth.NewHMACVerifier("secret")
	require.NoError(t, err)

	token, err := v.Issue("u1", "org-a", auth.RoleUser, time.Hour)
	require.NoError(t, err)

	// Act
	claims, err := v.Verify(token)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "org-a", claims.OrganizationID)
	assert.False(t, claims.IsSuperAdmin())
}

func TestHMACVerifier_WrongSecret(t *testing.T) {
	issuer, _ := auth.NewHMACVerifier("secret-a")
	verifier, _ := auth.NewHMACVerifier("secret-b")

	token, err := issuer.Issue("u1", "org-a", auth.RoleUser, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestHMACVerifier_Expired(t *testing.T) {
	v, _ := auth.NewHMACVerifier("secret")
	token, err := v.Issue("u1", "org-a", auth.RoleUser, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestNewHMACVerifier_EmptySecret(t *testing.T) {
	v, err := auth.NewHMACVerifier("")
	assert.Nil(t, v)
	assert.Contains(t, err.Error(), "jwt secret is required")
}
