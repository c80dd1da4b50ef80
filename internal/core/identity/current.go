package identity

import (
	"context"
	"strings"
)

var (
	userIDClaims = []string{ClaimSubject, ClaimUserID, ClaimUserIDLegacy, ClaimNameID}
	emailClaims  = []string{ClaimEmail, ClaimEmailAddress}
	roleClaims   = []string{ClaimRole, ClaimRoles, ClaimPlatformRole}
)

// CurrentUser exposes typed facts about the request principal.
// Nothing here returns an error: absence is reported through the bool result.
type CurrentUser struct {
	id Identity
}

// Current returns the resolver for the identity carried by ctx.
func Current(ctx context.Context) CurrentUser {
	return CurrentUser{id: FromContext(ctx)}
}

// Of wraps an explicit identity.
func Of(id Identity) CurrentUser {
	return CurrentUser{id: id}
}

// IsAuthenticated reports whether the principal was authenticated.
func (u CurrentUser) IsAuthenticated() bool {
	return u.id.IsAuthenticated()
}

// UserID prefers the standard subject claim, then the alternate names.
func (u CurrentUser) UserID() (string, bool) {
	return u.first(userIDClaims)
}

// Email returns the email claim as asserted by the identity provider.
func (u CurrentUser) Email() (string, bool) {
	return u.first(emailClaims)
}

// EmailVerified is false only when the provider explicitly marked the email
// unverified. Providers that omit the claim vouch for the address.
func (u CurrentUser) EmailVerified() bool {
	if !u.id.IsAuthenticated() {
		return false
	}
	v, ok := u.id.First(ClaimEmailVerified)
	return !ok || !strings.EqualFold(strings.TrimSpace(v), "false")
}

// VerifiedEmail returns the email only if it may be used to find the user's tenant.
func (u CurrentUser) VerifiedEmail() (string, bool) {
	email, ok := u.Email()
	if !ok || !u.EmailVerified() {
		return "", false
	}
	return email, true
}

// IsInRole matches role case-insensitively against the generic and platform role claims.
func (u CurrentUser) IsInRole(role string) bool {
	role = strings.TrimSpace(role)
	if !u.id.IsAuthenticated() || role == "" {
		return false
	}
	for _, name := range roleClaims {
		for _, v := range u.id.claims[name] {
			if strings.EqualFold(strings.TrimSpace(v), role) {
				return true
			}
		}
	}
	return false
}

// Roles returns the distinct role names in claim order.
func (u CurrentUser) Roles() []string {
	if !u.id.IsAuthenticated() {
		return nil
	}
	seen := make(map[string]struct{})
	var roles []string
	for _, name := range roleClaims {
		for _, v := range u.id.claims[name] {
			v = strings.TrimSpace(v)
			key := strings.ToLower(v)
			if _, dup := seen[key]; v == "" || dup {
				continue
			}
			seen[key] = struct{}{}
			roles = append(roles, v)
		}
	}
	return roles
}

// TenantClaim returns the tenant claim. Prefer tenant.GetTenantID, which applies
// the lookup-over-claim precedence.
func (u CurrentUser) TenantClaim() (string, bool) {
	if !u.id.IsAuthenticated() {
		return "", false
	}
	return u.id.First(ClaimTenantID)
}

func (u CurrentUser) first(names []string) (string, bool) {
	if !u.id.IsAuthenticated() {
		return "", false
	}
	for _, name := range names {
		if v, ok := u.id.First(name); ok {
			return v, true
		}
	}
	return "", false
}
