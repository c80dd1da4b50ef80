// Package rowfilter defines the contract between request code and the store's
// row-level security policies.
//
// A Session owns exactly one physical store connection. Configure writes the
// session variables the store policies evaluate (active tenant, admin flag);
// Clear resets them to neutral. Session variables never outlive the Session:
// implementations must not hand a connection back to a shared pool while it
// still carries non-neutral values.
package rowfilter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Store-side session variable names.
const (
	VarTenant  = "app.current_tenant"
	VarIsAdmin = "app.is_admin"
)

var (
	// ErrSessionReleased is returned when a released session is used again.
	ErrSessionReleased = errors.New("rowfilter: session already released")

	// ErrNoTenant is returned when a tenant-scoped operation has no tenant.
	ErrNoTenant = errors.New("rowfilter: tenant id is required")
)

// Settings are the values of the store session variables.
type Settings struct {
	TenantID string
	IsAdmin  bool
}

// Neutral returns the cleared settings.
func Neutral() Settings {
	return Settings{}
}

// IsNeutral reports whether no tenant and no admin flag are set.
func (s Settings) IsNeutral() bool {
	return s.TenantID == "" && !s.IsAdmin
}

// Reader is the read-only query surface handed to guarded operations.
// It intentionally has no Exec.
type Reader interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session is a pinned store connection with configurable row-filter variables.
type Session interface {
	// Configure sets the active tenant and admin flag on the connection.
	Configure(ctx context.Context, tenantID string, isAdmin bool) error

	// Clear resets both variables to their neutral values.
	Clear(ctx context.Context) error

	// Current reads the variables back from the connection.
	Current(ctx context.Context) (Settings, error)

	// ReadOnly runs fn inside a read-only transaction on the pinned connection.
	ReadOnly(ctx context.Context, fn func(ctx context.Context, r Reader) error) error

	// Release gives the connection up. A connection that may still carry
	// non-neutral variables is destroyed instead of being pooled.
	// Release is idempotent.
	Release()
}

// Opener pins a new Session.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}
