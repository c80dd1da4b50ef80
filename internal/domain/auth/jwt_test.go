package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/core/identity"
)

func newTestJWT() *JWTService {
	cfg := DefaultJWTConfig("session-secret")
	cfg.IdPSecret = "idp-secret"
	cfg.IdPIssuer = "https://idp.example.com"
	cfg.IdPAudience = "tenantgate"
	return NewJWTService(cfg)
}

func TestJWT_SessionRoundTrip(t *testing.T) {
	svc := newTestJWT()
	id := identity.New(map[string][]string{
		identity.ClaimSubject:      {"u1"},
		identity.ClaimEmail:        {"ana@example.com"},
		identity.ClaimRole:         {"editor"},
		identity.ClaimPlatformRole: {identity.RoleSuperAdmin},
		identity.ClaimTenantID:     {"t1"},
	})

	token, exp, err := svc.IssueSession(id)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	got, err := svc.ValidateSession(token)
	require.NoError(t, err)

	current := identity.Of(got)
	userID, _ := current.UserID()
	email, _ := current.Email()
	tid, _ := current.TenantClaim()
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "ana@example.com", email)
	assert.Equal(t, "t1", tid)
	assert.True(t, current.IsInRole("EDITOR"))
	assert.True(t, current.IsInRole(identity.RoleSuperAdmin))
}

func TestJWT_IssueSessionRequiresUserID(t *testing.T) {
	_, _, err := newTestJWT().IssueSession(identity.New(map[string][]string{
		identity.ClaimEmail: {"a@example.com"},
	}))
	assert.Error(t, err)
}

func TestJWT_RejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newTestJWT()

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "tenantgate",
		"sub": "u1",
		"exp": jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, err := expired.SignedString([]byte("session-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateSession(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "tenantgate",
		"sub": "u1",
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err = other.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	id, err := svc.ValidateSession(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.False(t, id.IsAuthenticated())
}

func TestJWT_ValidateIdentityToken(t *testing.T) {
	svc := newTestJWT()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":            "https://idp.example.com",
		"aud":            "tenantgate",
		"sub":            "u9",
		"email":          "bo@example.com",
		"email_verified": false,
		"roles":          []string{"viewer", "editor"},
		"exp":            jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("idp-secret"))
	require.NoError(t, err)

	id, err := svc.ValidateIdentityToken(signed)
	require.NoError(t, err)
	assert.True(t, id.IsAuthenticated())
	verified, _ := id.First(identity.ClaimEmailVerified)
	assert.Equal(t, "false", verified)
	assert.ElementsMatch(t, []string{"viewer", "editor"}, id.Values(identity.ClaimRoles))

	// Session tokens are not accepted as identity tokens.
	session, _, err := svc.IssueSession(id)
	require.NoError(t, err)
	_, err = svc.ValidateIdentityToken(session)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
