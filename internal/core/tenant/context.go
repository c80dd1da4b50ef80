package tenant

import (
	"context"
	"strings"

	"tenantgate/internal/core/apperror"
	"tenantgate/internal/core/identity"
)

type lookupKey struct{}

// WithLookup attaches a pre-computed tenant id to ctx. It takes precedence over
// the identity's tenant claim for the rest of the request. Blank ids are ignored.
func WithLookup(ctx context.Context, tenantID string) context.Context {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, lookupKey{}, tenantID)
}

// Lookup returns the pre-computed tenant id, if an upstream step attached one.
func Lookup(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(lookupKey{}).(string)
	return v, ok && v != ""
}

// Resolve returns the effective tenant for ctx:
//  1. the pre-computed lookup result, if present;
//  2. otherwise the tenant claim of an authenticated identity;
//  3. otherwise false.
//
// Resolve never fails. Callers must treat false as "deny".
func Resolve(ctx context.Context) (Resolved, bool) {
	if id, ok := Lookup(ctx); ok {
		return Resolved{TenantID: id, Source: SourceLookup}, true
	}
	if id, ok := identity.Current(ctx).TenantClaim(); ok {
		return Resolved{TenantID: id, Source: SourceClaim}, true
	}
	return Resolved{}, false
}

// GetTenantID returns the effective tenant id.
func GetTenantID(ctx context.Context) (string, bool) {
	r, ok := Resolve(ctx)
	return r.TenantID, ok
}

// Require returns the effective tenant id or a TENANT_REQUIRED error.
func Require(ctx context.Context) (string, error) {
	id, ok := GetTenantID(ctx)
	if !ok {
		return "", apperror.NewTenantRequired().WithCause(ErrNoTenant)
	}
	return id, nil
}
