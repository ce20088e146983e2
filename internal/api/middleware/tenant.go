package middleware

import (
	"github.com/gin-gonic/gin"

	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
)

const contextKeyTenant = "tenant_id"

// TenantMiddleware resolves the organization a request acts on.
type TenantMiddleware struct{}

// NewTenantMiddleware creates a new TenantMiddleware.
func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

// ExtractTenant returns a gin middleware that scopes the request to the
// caller's organization. Super admins may act on another organization through
// the organizationId query parameter. Requests that end up without an
// organization are rejected.
func (m *TenantMiddleware) ExtractTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString(ContextKeyOrganizationID)
		if override := c.Query("organizationId"); override != "" && IsSuperAdmin(c) {
			tenantID = override
		}
		if tenantID == "" {
			HandleError(c, domainerrors.NewValidationError("organization id is required", "token carries no organizationId"))
			return
		}
		c.Set(contextKeyTenant, tenantID)
		c.Next()
	}
}

// GetTenantID retrieves the resolved organization id from the gin context.
func GetTenantID(c *gin.Context) string {
	if tenantID := c.GetString(contextKeyTenant); tenantID != "" {
		return tenantID
	}
	return c.GetString(ContextKeyOrganizationID)
}

// TenantContext holds the principal and scope of a request.
type TenantContext struct {
	OrganizationID string
	UserID         string
	Role           string
}

// GetTenantContext extracts the full tenant context from the request.
func GetTenantContext(c *gin.Context) *TenantContext {
	return &TenantContext{
		OrganizationID: GetTenantID(c),
		UserID:         GetUserID(c),
		Role:           GetRole(c),
	}
}
