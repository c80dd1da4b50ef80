package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tenantgate/internal/core/apperror"
	"tenantgate/internal/core/identity"
	"tenantgate/internal/core/tenant"
	"tenantgate/internal/domain/binding"
	"tenantgate/internal/infrastructure/http/v1/middleware"
	"tenantgate/pkg/logger"
)

// TokenService validates identity tokens and issues session tokens.
type TokenService interface {
	ValidateIdentityToken(tokenString string) (identity.Identity, error)
	IssueSession(id identity.Identity) (string, time.Time, error)
}

// TenantBinder attaches the tenant claim at login.
type TenantBinder interface {
	Bind(ctx context.Context, id identity.Identity) binding.Result
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler completes identity provider logins.
type AuthHandler struct {
	*BaseHandler
	tokens TokenService
	binder TenantBinder
	cookie CookieConfig
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *BaseHandler, tokens TokenService, binder TenantBinder, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{BaseHandler: base, tokens: tokens, binder: binder, cookie: cookie}
}

// Callback handles POST /auth/callback.
// The identity token comes as a Bearer header or an id_token form field.
func (h *AuthHandler) Callback(c *gin.Context) {
	raw := middleware.BearerToken(c)
	if raw == "" {
		raw = c.PostForm("id_token")
	}
	if raw == "" {
		h.Error(c, apperror.NewUnauthorized("identity token required"))
		return
	}

	id, err := h.tokens.ValidateIdentityToken(raw)
	if err != nil {
		logger.Info(c.Request.Context(), "identity token rejected", "error", err)
		h.Error(c, apperror.NewUnauthorized("invalid identity token"))
		return
	}

	ctx := identity.WithIdentity(c.Request.Context(), id)
	result := h.binder.Bind(ctx, id)

	ctx = identity.WithIdentity(ctx, result.Identity)
	if result.Found {
		ctx = tenant.WithLookup(ctx, result.TenantID)
	}
	c.Request = c.Request.WithContext(ctx)

	session, expiresAt, err := h.tokens.IssueSession(result.Identity)
	if err != nil {
		h.Error(c, apperror.NewUnauthorized("identity token has no subject").WithCause(err))
		return
	}

	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, session, maxAge, "/", "", h.cookie.Secure, true)

	logger.Info(ctx, "login completed", "tenant_bound", result.Found, "redirect", result.Redirect)
	c.Redirect(http.StatusFound, result.Redirect)
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/callback", h.Callback)
	rg.POST("/logout", h.Logout)
}
