package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"tenantgate/internal/core/apperror"
	"tenantgate/internal/core/rowfilter"
	"tenantgate/internal/core/tenant"
	"tenantgate/internal/domain/audit"
	"tenantgate/internal/domain/override"
	"tenantgate/internal/infrastructure/storage/postgres"
)

// HeaderOverrideReason carries the justification for an admin override.
const HeaderOverrideReason = "X-Override-Reason"

// AuditLister reads the override audit trail.
type AuditLister interface {
	List(ctx context.Context, f postgres.AuditFilter) ([]audit.Record, error)
}

// AdminHandler serves super-admin cross-tenant reads.
type AdminHandler struct {
	*BaseHandler
	overrides *override.Service
	repo      TenantRepository
	audit     AuditLister
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(base *BaseHandler, overrides *override.Service, repo TenantRepository, audit AuditLister) *AdminHandler {
	return &AdminHandler{BaseHandler: base, overrides: overrides, repo: repo, audit: audit}
}

// TenantUsers handles GET /api/v1/admin/tenants/:id/users
func (h *AdminHandler) TenantUsers(c *gin.Context) {
	tenantID := strings.TrimSpace(c.Param("id"))
	reason := strings.TrimSpace(c.GetHeader(HeaderOverrideReason))

	scope := rowfilter.Settings{TenantID: tenantID, IsAdmin: true}
	users, err := override.ExecuteReadOnlyAsAdmin(c.Request.Context(), h.overrides, tenantID, reason,
		func(ctx context.Context, r rowfilter.Reader) ([]tenant.User, error) {
			return h.repo.ListUsers(ctx, r, scope, tenantID)
		})
	if err != nil {
		if override.IsCanceled(err) {
			err = apperror.NewUnavailable("override query cancelled").WithCause(err)
		}
		h.Error(c, err)
		return
	}
	h.OK(c, ListResponse{Items: users, Count: len(users)})
}

type auditQuery struct {
	TenantID      string `form:"tenant_id"`
	AdminID       string `form:"admin_id"`
	CorrelationID string `form:"correlation_id" binding:"omitempty,uuid"`
	Limit         uint64 `form:"limit" binding:"omitempty,max=500"`
}

// Audit handles GET /api/v1/admin/audit
func (h *AdminHandler) Audit(c *gin.Context) {
	var q auditQuery
	if !h.BindQuery(c, &q) {
		return
	}

	records, err := h.audit.List(c.Request.Context(), postgres.AuditFilter{
		TargetTenantID: q.TenantID,
		AdminID:        q.AdminID,
		CorrelationID:  q.CorrelationID,
		Limit:          q.Limit,
	})
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.OK(c, ListResponse{Items: records, Count: len(records)})
}
