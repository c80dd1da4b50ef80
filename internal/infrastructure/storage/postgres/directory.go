package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tenantgate/internal/domain/binding"
)

const tenantForEmailSQL = `SELECT app_tenant_for_email($1)`

// Directory resolves a login email to its tenant through the
// app_tenant_for_email bypass function. It is the only cross-tenant read
// outside the admin override path.
type Directory struct {
	db DB
}

var _ binding.Directory = (*Directory)(nil)

// NewDirectory creates a directory over db.
func NewDirectory(db DB) *Directory {
	return &Directory{db: db}
}

// TenantIDByEmail returns binding.ErrNoTenant when no user has the email.
func (d *Directory) TenantIDByEmail(ctx context.Context, email string) (string, error) {
	var tenantID *string
	err := d.db.QueryRow(ctx, tenantForEmailSQL, email).Scan(&tenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", binding.ErrNoTenant
	}
	if err != nil {
		return "", fmt.Errorf("lookup tenant by email: %w", err)
	}
	if tenantID == nil || *tenantID == "" {
		return "", binding.ErrNoTenant
	}
	return *tenantID, nil
}
