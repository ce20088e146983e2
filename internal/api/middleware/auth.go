// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/pkg/auth"
)

// Context keys set by Authenticate.
const (
	ContextKeyToken          = "auth_token"
	ContextKeyUserID         = "user_id"
	ContextKeyOrganizationID = "organization_id"
	ContextKeyRole           = "role"
)

// AuthMiddleware verifies bearer tokens.
type AuthMiddleware struct {
	verifier auth.Verifier
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(verifier auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Authenticate returns a gin middleware that validates the Bearer token and
// stores the principal in the context for downstream handlers.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			HandleError(c, domainerrors.NewUnauthorizedError("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			HandleError(c, domainerrors.NewUnauthorizedError("invalid authorization header format"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			HandleError(c, domainerrors.NewUnauthorizedError("empty token"))
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			HandleError(c, domainerrors.NewUnauthorizedError("invalid token"))
			return
		}

		c.Set(ContextKeyToken, token)
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyOrganizationID, claims.OrganizationID)
		c.Set(ContextKeyRole, claims.Role)

		c.Next()
	}
}

// RequireRole rejects principals whose role is not listed. super_admin is
// always accepted.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == auth.RoleSuperAdmin {
			c.Next()
			return
		}
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		HandleError(c, domainerrors.NewForbiddenError("insufficient role"))
	}
}

// GetToken retrieves the auth token from the gin context.
func GetToken(c *gin.Context) string {
	return c.GetString(ContextKeyToken)
}

// GetUserID retrieves the authenticated user id.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// GetRole retrieves the authenticated role.
func GetRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}

// IsSuperAdmin reports whether the principal is a super admin.
func IsSuperAdmin(c *gin.Context) bool {
	return GetRole(c) == auth.RoleSuperAdmin
}
