// Package binding attaches the tenant claim to a freshly authenticated identity.
package binding

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tenantgate/internal/core/identity"
	"tenantgate/pkg/logger"
)

var tracer = otel.Tracer("tenantgate/binding")

// ErrNoTenant is returned by a Directory when the email belongs to no tenant.
var ErrNoTenant = errors.New("no tenant for email")

// Directory maps a verified email to its owning tenant. Implementations run
// outside tenant isolation through a narrow, explicitly privileged path.
type Directory interface {
	TenantIDByEmail(ctx context.Context, email string) (string, error)
}

// Binding results, used as metric labels.
const (
	resultBound       = "bound"
	resultUnbound     = "unbound"
	resultNoEmail     = "no_email"
	resultUnverified  = "unverified"
	resultUnavailable = "unavailable"
)

var bindingsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenantgate_tenant_bindings_total",
		Help: "Login-time tenant binding attempts by result.",
	},
	[]string{"result"},
)

// Config holds redirect targets and the directory timeout.
type Config struct {
	AppPath        string
	OnboardingPath string
	LookupTimeout  time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AppPath:        "/app",
		OnboardingPath: "/onboarding",
		LookupTimeout:  3 * time.Second,
	}
}

// Result of binding one login.
type Result struct {
	Identity identity.Identity
	// TenantID is empty when the user has no tenant yet.
	TenantID string
	Redirect string
	Found    bool
}

// Binder performs the login-time tenant lookup.
type Binder struct {
	dir    Directory
	log    *logger.Logger
	config Config
}

// NewBinder creates a Binder.
func NewBinder(dir Directory, log *logger.Logger, cfg Config) *Binder {
	def := DefaultConfig()
	if cfg.AppPath == "" {
		cfg.AppPath = def.AppPath
	}
	if cfg.OnboardingPath == "" {
		cfg.OnboardingPath = def.OnboardingPath
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = def.LookupTimeout
	}
	return &Binder{dir: dir, log: log.WithComponent("tenant-binding"), config: cfg}
}

// Bind looks up the tenant owning the identity's email and returns the
// identity enriched with the tenant claim. Every failure routes to onboarding;
// Bind never returns an error and never blocks the login.
func (b *Binder) Bind(ctx context.Context, id identity.Identity) Result {
	ctx, span := tracer.Start(ctx, "binding.bind")
	defer span.End()

	// A stale tenant claim from the IdP is never trusted.
	unbound := Result{
		Identity: id.WithoutClaim(identity.ClaimTenantID),
		Redirect: b.config.OnboardingPath,
	}

	current := identity.Of(id)
	email, ok := current.Email()
	if !ok {
		b.finish(span, resultNoEmail)
		return unbound
	}
	if !current.EmailVerified() {
		b.log.WithContext(ctx).Infow("email not verified, skipping tenant lookup")
		b.finish(span, resultUnverified)
		return unbound
	}

	lookupCtx, cancel := context.WithTimeout(ctx, b.config.LookupTimeout)
	defer cancel()

	tenantID, err := b.dir.TenantIDByEmail(lookupCtx, strings.ToLower(email))
	switch {
	case errors.Is(err, ErrNoTenant):
		b.finish(span, resultUnbound)
		return unbound
	case err != nil:
		span.RecordError(err)
		b.log.WithContext(ctx).Warnw("tenant directory unavailable, routing to onboarding", "error", err)
		b.finish(span, resultUnavailable)
		return unbound
	}

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		b.finish(span, resultUnbound)
		return unbound
	}

	span.SetAttributes(attribute.String("binding.tenant_id", tenantID))
	b.finish(span, resultBound)
	return Result{
		Identity: id.WithClaim(identity.ClaimTenantID, tenantID),
		TenantID: tenantID,
		Redirect: b.config.AppPath,
		Found:    true,
	}
}

func (b *Binder) finish(span trace.Span, result string) {
	span.SetAttributes(attribute.String("binding.result", result))
	bindingsTotal.WithLabelValues(result).Inc()
}
