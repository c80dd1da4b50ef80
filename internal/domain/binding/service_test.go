package binding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/core/identity"
	"tenantgate/pkg/logger"
)

type directoryFunc func(ctx context.Context, email string) (string, error)

func (f directoryFunc) TenantIDByEmail(ctx context.Context, email string) (string, error) {
	return f(ctx, email)
}

func staticDirectory(tenants map[string]string) directoryFunc {
	return func(ctx context.Context, email string) (string, error) {
		if id, ok := tenants[email]; ok {
			return id, nil
		}
		return "", ErrNoTenant
	}
}

func login(claims map[string][]string) identity.Identity {
	return identity.New(claims)
}

func TestBind_FoundAddsClaimAndRedirectsToApp(t *testing.T) {
	b := NewBinder(staticDirectory(map[string]string{"ana@example.com": "t-42"}), logger.Nop(), DefaultConfig())

	res := b.Bind(context.Background(), login(map[string][]string{
		identity.ClaimSubject: {"u1"},
		identity.ClaimEmail:   {"Ana@Example.com"},
	}))

	require.True(t, res.Found)
	assert.Equal(t, "t-42", res.TenantID)
	assert.Equal(t, "/app", res.Redirect)
	tid, ok := identity.Of(res.Identity).TenantClaim()
	require.True(t, ok)
	assert.Equal(t, "t-42", tid)
}

func TestBind_NotFoundRoutesToOnboarding(t *testing.T) {
	b := NewBinder(staticDirectory(nil), logger.Nop(), DefaultConfig())

	res := b.Bind(context.Background(), login(map[string][]string{
		identity.ClaimEmail: {"new@example.com"},
	}))

	assert.False(t, res.Found)
	assert.Empty(t, res.TenantID)
	assert.Equal(t, "/onboarding", res.Redirect)
	_, ok := identity.Of(res.Identity).TenantClaim()
	assert.False(t, ok)
}

func TestBind_EmptyTenantIsNotFound(t *testing.T) {
	b := NewBinder(staticDirectory(map[string]string{"a@example.com": "  "}), logger.Nop(), DefaultConfig())

	res := b.Bind(context.Background(), login(map[string][]string{identity.ClaimEmail: {"a@example.com"}}))

	assert.False(t, res.Found)
	assert.Equal(t, "/onboarding", res.Redirect)
}

func TestBind_SkipsLookupWithoutEmailOrVerification(t *testing.T) {
	tests := map[string]map[string][]string{
		"no email":   {identity.ClaimSubject: {"u1"}},
		"unverified": {identity.ClaimEmail: {"a@example.com"}, identity.ClaimEmailVerified: {"false"}},
	}
	for name, claims := range tests {
		t.Run(name, func(t *testing.T) {
			called := false
			dir := directoryFunc(func(ctx context.Context, email string) (string, error) {
				called = true
				return "t1", nil
			})
			res := NewBinder(dir, logger.Nop(), DefaultConfig()).Bind(context.Background(), login(claims))

			assert.False(t, called)
			assert.False(t, res.Found)
			assert.Equal(t, "/onboarding", res.Redirect)
		})
	}
}

func TestBind_DirectoryFailureRoutesToOnboarding(t *testing.T) {
	dir := directoryFunc(func(ctx context.Context, email string) (string, error) {
		return "", errors.New("connection refused")
	})

	res := NewBinder(dir, logger.Nop(), DefaultConfig()).Bind(context.Background(), login(map[string][]string{
		identity.ClaimEmail: {"a@example.com"},
	}))

	assert.False(t, res.Found)
	assert.Equal(t, "/onboarding", res.Redirect)
}

func TestBind_DirectoryTimeoutRoutesToOnboarding(t *testing.T) {
	dir := directoryFunc(func(ctx context.Context, email string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	cfg := DefaultConfig()
	cfg.LookupTimeout = 10 * time.Millisecond

	res := NewBinder(dir, logger.Nop(), cfg).Bind(context.Background(), login(map[string][]string{
		identity.ClaimEmail: {"a@example.com"},
	}))

	assert.False(t, res.Found)
	assert.Equal(t, "/onboarding", res.Redirect)
}

func TestBind_DropsStaleTenantClaimWhenUnbound(t *testing.T) {
	b := NewBinder(staticDirectory(nil), logger.Nop(), DefaultConfig())

	res := b.Bind(context.Background(), login(map[string][]string{
		identity.ClaimEmail:    {"a@example.com"},
		identity.ClaimTenantID: {"forged"},
	}))

	_, ok := identity.Of(res.Identity).TenantClaim()
	assert.False(t, ok)
}
