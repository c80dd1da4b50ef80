package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"tenantgate/internal/core/apperror"
	"tenantgate/internal/core/identity"
	"tenantgate/pkg/logger"
)

// SessionValidator turns a session token into an identity.
type SessionValidator interface {
	ValidateSession(tokenString string) (identity.Identity, error)
}

// Authenticate attaches the request identity. The session token is read from
// the cookie first, then from a Bearer Authorization header. Requests without
// a valid token continue as anonymous.
func Authenticate(validator SessionValidator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity.Anonymous()

		if token := sessionToken(c, cookieName); token != "" {
			validated, err := validator.ValidateSession(token)
			if err != nil {
				logger.Debug(c.Request.Context(), "session token rejected", "error", err)
			} else {
				id = validated
			}
		}

		ctx := identity.WithIdentity(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		if userID, ok := identity.Of(id).UserID(); ok {
			c.Set("user_id", userID)
		}

		c.Next()
	}
}

func sessionToken(c *gin.Context, cookieName string) string {
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && v != "" {
			return v
		}
	}
	return bearerToken(c)
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// BearerToken returns the Bearer credential of the request, if any.
func BearerToken(c *gin.Context) string {
	return bearerToken(c)
}

// RequireAuthenticated rejects anonymous requests.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identity.Current(c.Request.Context()).IsAuthenticated() {
			abortUnauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

// RequireRole middleware checks if user has any of the roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current := identity.Current(c.Request.Context())
		if !current.IsAuthenticated() {
			abortUnauthorized(c, "authentication required")
			return
		}

		for _, required := range roles {
			if current.IsInRole(required) {
				c.Next()
				return
			}
		}
		_ = c.Error(
			apperror.NewForbidden("insufficient permissions").
				WithDetail("required_roles", roles),
		)
		c.Abort()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
