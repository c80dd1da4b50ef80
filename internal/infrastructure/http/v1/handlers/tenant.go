package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"tenantgate/internal/core/rowfilter"
	"tenantgate/internal/core/tenant"
)

// TenantRepository reads tenant-scoped rows through a configured session.
type TenantRepository interface {
	GetTenant(ctx context.Context, q rowfilter.Reader, scope rowfilter.Settings, id string) (*tenant.Tenant, error)
	ListUsers(ctx context.Context, q rowfilter.Reader, scope rowfilter.Settings, tenantID string) ([]tenant.User, error)
}

// TenantHandler serves the caller's own tenant.
type TenantHandler struct {
	*BaseHandler
	sessions rowfilter.Opener
	repo     TenantRepository
}

// NewTenantHandler creates a tenant handler.
func NewTenantHandler(base *BaseHandler, sessions rowfilter.Opener, repo TenantRepository) *TenantHandler {
	return &TenantHandler{BaseHandler: base, sessions: sessions, repo: repo}
}

// Current handles GET /api/v1/tenant
func (h *TenantHandler) Current(c *gin.Context) {
	tenantID, err := h.TenantID(c)
	if err != nil {
		h.Error(c, err)
		return
	}

	var t *tenant.Tenant
	scope := rowfilter.Settings{TenantID: tenantID}
	err = rowfilter.WithTenant(c.Request.Context(), h.sessions, tenantID, func(ctx context.Context, r rowfilter.Reader) error {
		var err error
		t, err = h.repo.GetTenant(ctx, r, scope, tenantID)
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// Users handles GET /api/v1/tenant/users
func (h *TenantHandler) Users(c *gin.Context) {
	tenantID, err := h.TenantID(c)
	if err != nil {
		h.Error(c, err)
		return
	}

	var users []tenant.User
	scope := rowfilter.Settings{TenantID: tenantID}
	err = rowfilter.WithTenant(c.Request.Context(), h.sessions, tenantID, func(ctx context.Context, r rowfilter.Reader) error {
		var err error
		users, err = h.repo.ListUsers(ctx, r, scope, tenantID)
		return err
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, ListResponse{Items: users, Count: len(users)})
}

// RegisterRoutes registers tenant routes.
func (h *TenantHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Current)
	rg.GET("/users", h.Users)
}
