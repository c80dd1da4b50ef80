// Package tenant resolves which tenant a logical operation runs for.
// All tenants share one database; isolation comes from row-level policies
// driven by per-connection session variables (see internal/core/rowfilter).
package tenant

import "time"

// Type classifies a tenant.
type Type string

const (
	TypeIndividual   Type = "individual"
	TypeOrganization Type = "organization"
)

// Tenant is a tenant record. This subsystem only reads tenants.
type Tenant struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Type        Type      `db:"tenant_type" json:"type"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Source tells where a resolved tenant id came from.
type Source string

const (
	// SourceLookup - pre-computed by an upstream step that queried the store.
	SourceLookup Source = "lookup"
	// SourceClaim - taken from the identity's tenant claim.
	SourceClaim Source = "claim"
)

// Resolved is the tenant in effect for the current logical operation.
type Resolved struct {
	TenantID string
	Source   Source
}

// User is a member of exactly one tenant.
type User struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenantId"`
	Email       string    `db:"email" json:"email"`
	DisplayName string    `db:"display_name" json:"displayName"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
