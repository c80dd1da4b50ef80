// Package identity models the authenticated principal of a request.
//
// The authentication layer produces one Identity per request. Claims are a
// dynamically keyed multi-map; callers should go through the typed accessors in
// current.go instead of reading claim keys directly.
package identity

import (
	"context"
	"strings"
)

// Claim names understood by the resolvers.
const (
	ClaimSubject       = "sub"
	ClaimUserID        = "uid"
	ClaimUserIDLegacy  = "user_id"
	ClaimNameID        = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	ClaimEmail         = "email"
	ClaimEmailAddress  = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	ClaimEmailVerified = "email_verified"
	ClaimRole          = "role"
	ClaimRoles         = "roles"
	ClaimPlatformRole  = "platform_role"
	ClaimTenantID      = "tid"
)

// RoleSuperAdmin is the platform role allowed to open an admin override.
const RoleSuperAdmin = "platform_super_admin"

// Identity is an immutable view of one authenticated (or anonymous) principal.
type Identity struct {
	authenticated bool
	claims        map[string][]string
}

// Anonymous returns an unauthenticated identity without claims.
func Anonymous() Identity {
	return Identity{}
}

// New creates an authenticated identity. The claims map is copied.
func New(claims map[string][]string) Identity {
	return Identity{authenticated: true, claims: cloneClaims(claims)}
}

// IsAuthenticated reports whether the authentication layer accepted the principal.
func (i Identity) IsAuthenticated() bool {
	return i.authenticated
}

// First returns the first non-blank value of the claim.
func (i Identity) First(name string) (string, bool) {
	for _, v := range i.claims[name] {
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", false
}

// Values returns a copy of all values of the claim.
func (i Identity) Values(name string) []string {
	vals := i.claims[name]
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Claims returns a copy of the claim set.
func (i Identity) Claims() map[string][]string {
	return cloneClaims(i.claims)
}

// WithClaim returns a copy of the identity with the claim replaced by value.
func (i Identity) WithClaim(name, value string) Identity {
	next := Identity{authenticated: i.authenticated, claims: cloneClaims(i.claims)}
	if next.claims == nil {
		next.claims = make(map[string][]string, 1)
	}
	next.claims[name] = []string{value}
	return next
}

// WithoutClaim returns a copy of the identity with the claim removed.
func (i Identity) WithoutClaim(name string) Identity {
	next := Identity{authenticated: i.authenticated, claims: cloneClaims(i.claims)}
	delete(next.claims, name)
	return next
}

func cloneClaims(src map[string][]string) map[string][]string {
	if src == nil {
		return nil
	}
	dst := make(map[string][]string, len(src))
	for k, v := range src {
		vals := make([]string, len(v))
		copy(vals, v)
		dst[k] = vals
	}
	return dst
}

// --- Context ---

type identityKey struct{}

// WithIdentity stores the request identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the request identity, or an anonymous one.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id
	}
	return Anonymous()
}
