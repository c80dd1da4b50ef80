// Package tenant_repo reads tenant-scoped tables through a configured
// rowfilter session. Every result is re-checked against the in-process
// policy, so a missing or misconfigured store policy cannot leak rows.
package tenant_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tenantgate/internal/core/apperror"
	"tenantgate/internal/core/rowfilter"
	"tenantgate/internal/core/tenant"
)

var (
	tenantColumns = []string{"id", "display_name", "tenant_type", "created_at"}
	userColumns   = []string{"id", "tenant_id", "email", "display_name", "created_at"}
)

// Repo reads tenants and users.
type Repo struct {
	policy *rowfilter.Policy
}

// New creates a repository checking rows against policy.
func New(policy *rowfilter.Policy) *Repo {
	return &Repo{policy: policy}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetTenant loads one tenant. Rows the scope may not read are reported as not found.
func (r *Repo) GetTenant(ctx context.Context, q rowfilter.Reader, scope rowfilter.Settings, id string) (*tenant.Tenant, error) {
	sql, args, err := r.Builder().
		Select(tenantColumns...).
		From("tenants").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var t tenant.Tenant
	if err := pgxscan.Get(ctx, q, &t, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("tenant", id)
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	if !r.policy.Allows(scope, rowfilter.OpRead, t.ID) {
		return nil, apperror.NewNotFound("tenant", id)
	}
	return &t, nil
}

// ListUsers returns the users of tenantID ordered by email.
func (r *Repo) ListUsers(ctx context.Context, q rowfilter.Reader, scope rowfilter.Settings, tenantID string) ([]tenant.User, error) {
	sql, args, err := r.Builder().
		Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("email").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var users []tenant.User
	if err := pgxscan.Select(ctx, q, &users, sql, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return rowfilter.FilterReadable(r.policy, scope, users, func(u tenant.User) string { return u.TenantID }), nil
}
