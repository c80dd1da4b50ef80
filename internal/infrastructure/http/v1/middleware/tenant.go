package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tenantgate/internal/core/identity"
	"tenantgate/internal/core/tenant"
	"tenantgate/internal/domain/binding"
	"tenantgate/pkg/logger"
)

// TenantLookup resolves the tenant of authenticated requests whose identity
// carries no tenant claim but a verified email, and stores it as the
// pre-computed lookup result.
// A failed lookup leaves the request without a tenant; tenant-scoped handlers
// then refuse it.
func TenantLookup(dir binding.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		current := identity.Current(ctx)

		if !current.IsAuthenticated() {
			c.Next()
			return
		}
		if _, ok := current.TenantClaim(); ok {
			c.Next()
			return
		}
		// Unverified addresses never resolve a tenant, matching login binding.
		email, ok := current.VerifiedEmail()
		if !ok {
			c.Next()
			return
		}

		tenantID, err := dir.TenantIDByEmail(ctx, email)
		switch {
		case errors.Is(err, binding.ErrNoTenant):
		case err != nil:
			logger.Warn(ctx, "tenant lookup failed", "error", err)
		default:
			c.Request = c.Request.WithContext(tenant.WithLookup(ctx, tenantID))
		}

		c.Next()
	}
}

// RequireTenant rejects requests that resolve to no tenant.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := tenant.Require(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}
