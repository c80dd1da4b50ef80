// Package auth converts between signed tokens and request identities.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tenantgate/internal/core/identity"
)

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("invalid token")

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	// Secret signs and verifies session tokens.
	Secret     string
	Issuer     string
	SessionTTL time.Duration

	// IdPSecret verifies identity tokens posted to the login callback.
	IdPSecret   string
	IdPIssuer   string
	IdPAudience string
}

// DefaultJWTConfig returns default JWT configuration.
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:     secret,
		Issuer:     "tenantgate",
		SessionTTL: 8 * time.Hour,
	}
}

// sessionClaims are copied from the bound identity into the session token.
var sessionClaims = []string{
	identity.ClaimEmail,
	identity.ClaimEmailVerified,
	identity.ClaimRoles,
	identity.ClaimPlatformRole,
	identity.ClaimTenantID,
}

// JWTService handles JWT operations.
type JWTService struct {
	config JWTConfig
	now    func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(config JWTConfig) *JWTService {
	return &JWTService{config: config, now: time.Now}
}

// IssueSession signs a session token for an authenticated identity.
func (s *JWTService) IssueSession(id identity.Identity) (string, time.Time, error) {
	current := identity.Of(id)
	userID, ok := current.UserID()
	if !ok {
		return "", time.Time{}, fmt.Errorf("issue session: identity has no user id")
	}

	now := s.now()
	expiresAt := now.Add(s.config.SessionTTL)

	claims := jwt.MapClaims{
		"iss": s.config.Issuer,
		"sub": userID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(expiresAt),
	}
	for _, name := range sessionClaims {
		switch vals := id.Values(name); len(vals) {
		case 0:
		case 1:
			claims[name] = vals[0]
		default:
			claims[name] = vals
		}
	}
	if roles := current.Roles(); len(roles) > 0 {
		claims[identity.ClaimRoles] = roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateSession verifies a session token and returns its identity.
func (s *JWTService) ValidateSession(tokenString string) (identity.Identity, error) {
	return s.parse(tokenString, s.config.Secret,
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
	)
}

// ValidateIdentityToken verifies a token issued by the identity provider.
func (s *JWTService) ValidateIdentityToken(tokenString string) (identity.Identity, error) {
	if s.config.IdPSecret == "" {
		return identity.Anonymous(), fmt.Errorf("%w: identity provider key not configured", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.config.IdPIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.IdPIssuer))
	}
	if s.config.IdPAudience != "" {
		opts = append(opts, jwt.WithAudience(s.config.IdPAudience))
	}
	return s.parse(tokenString, s.config.IdPSecret, opts...)
}

func (s *JWTService) parse(tokenString, secret string, opts ...jwt.ParserOption) (identity.Identity, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return identity.Anonymous(), fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return identity.Anonymous(), ErrInvalidToken
	}

	return identity.New(flatten(claims)), nil
}

// flatten converts JSON claim values into the identity multi-map.
// Nested objects are dropped.
func flatten(claims jwt.MapClaims) map[string][]string {
	out := make(map[string][]string, len(claims))
	for name, raw := range claims {
		switch v := raw.(type) {
		case string:
			out[name] = []string{v}
		case bool:
			out[name] = []string{strconv.FormatBool(v)}
		case float64:
			out[name] = []string{strconv.FormatFloat(v, 'f', -1, 64)}
		case []any:
			for _, item := range v {
				if str, ok := item.(string); ok {
					out[name] = append(out[name], str)
				}
			}
		}
	}
	return out
}
