// Package override implements the audited, read-only cross-tenant access
// window available to platform super-admins.
package override

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tenantgate/internal/core/apperror"
	appctx "tenantgate/internal/core/context"
	"tenantgate/internal/core/identity"
	"tenantgate/internal/core/rowfilter"
	"tenantgate/internal/domain/audit"
	"tenantgate/pkg/logger"
)

var tracer = otel.Tracer("tenantgate/override")

// Config tunes the override service.
type Config struct {
	// SuperAdminRole is the role required to open an override.
	SuperAdminRole string

	// CleanupTimeout bounds the Clear round-trip, which runs even after the
	// caller's context is cancelled.
	CleanupTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SuperAdminRole: identity.RoleSuperAdmin,
		CleanupTimeout: 5 * time.Second,
	}
}

// Service opens read-only admin sessions against a target tenant.
type Service struct {
	sessions rowfilter.Opener
	audit    audit.Sink
	log      *logger.Logger
	config   Config
	now      func() time.Time
}

// NewService creates an override service.
func NewService(sessions rowfilter.Opener, sink audit.Sink, log *logger.Logger, cfg Config) *Service {
	if cfg.SuperAdminRole == "" {
		cfg.SuperAdminRole = identity.RoleSuperAdmin
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = DefaultConfig().CleanupTimeout
	}
	return &Service{
		sessions: sessions,
		audit:    sink,
		log:      log.WithComponent("admin-override"),
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteReadOnlyAsAdmin runs query against tenantID with the admin flag set
// and returns its result.
//
// query must only read. The store rejects writes while the admin flag is set,
// and the Reader it receives has no Exec.
func ExecuteReadOnlyAsAdmin[T any](
	ctx context.Context,
	s *Service,
	tenantID, reason string,
	query func(ctx context.Context, r rowfilter.Reader) (T, error),
) (T, error) {
	var result T
	err := s.Execute(ctx, tenantID, reason, func(ctx context.Context, r rowfilter.Reader) error {
		var err error
		result, err = query(ctx, r)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Execute is the non-generic form of ExecuteReadOnlyAsAdmin.
func (s *Service) Execute(
	ctx context.Context,
	tenantID, reason string,
	fn func(ctx context.Context, r rowfilter.Reader) error,
) (err error) {
	tenantID = strings.TrimSpace(tenantID)
	reason = strings.TrimSpace(reason)

	if tenantID == "" {
		return apperror.NewValidation("tenant id is required").WithDetail("field", "tenant_id")
	}
	if reason == "" {
		return apperror.NewValidation("reason is required").WithDetail("field", "reason")
	}

	current := identity.Current(ctx)
	base := audit.Record{
		CorrelationID:  uuid.New(),
		TargetTenantID: tenantID,
		Reason:         reason,
		Operation:      audit.OperationReadOnly,
		RequestID:      appctx.GetRequestID(ctx),
	}
	base.AdminID, _ = current.UserID()

	if !current.IsInRole(s.config.SuperAdminRole) {
		_ = s.write(ctx, base, audit.OutcomeDenied, "")
		observe(audit.OutcomeDenied, 0)
		return apperror.NewForbidden("platform super-admin role required").
			WithDetail("required_role", s.config.SuperAdminRole)
	}

	adminID, ok := current.UserID()
	if !ok {
		s.log.WithContext(ctx).Errorw("super-admin identity without user id", "target_tenant_id", tenantID)
		return apperror.NewInternalState("authenticated admin has no resolvable user id")
	}
	base.AdminID = adminID

	ctx, span := tracer.Start(ctx, "override.execute")
	span.SetAttributes(
		attribute.String("override.tenant_id", tenantID),
		attribute.String("override.admin_id", adminID),
	)
	defer span.End()

	if werr := s.write(ctx, base, audit.OutcomeAttempting, ""); werr != nil {
		span.RecordError(werr)
		return apperror.NewInternal(fmt.Errorf("record override attempt: %w", werr))
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			_ = s.write(ctx, base, audit.OutcomeFailed, fmt.Sprintf("panic: %v", p))
			observe(audit.OutcomeFailed, time.Since(start))
			panic(p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			_ = s.write(ctx, base, audit.OutcomeFailed, err.Error())
			observe(audit.OutcomeFailed, time.Since(start))
			return
		}
		_ = s.write(ctx, base, audit.OutcomeSuccess, "")
		observe(audit.OutcomeSuccess, time.Since(start))
	}()

	return s.run(ctx, tenantID, fn)
}

// run pins a session, configures it for the override and always clears it.
func (s *Service) run(ctx context.Context, tenantID string, fn func(ctx context.Context, r rowfilter.Reader) error) error {
	sess, err := s.sessions.Open(ctx)
	if err != nil {
		return fmt.Errorf("open admin session: %w", err)
	}
	defer sess.Release()
	defer s.clear(ctx, sess, tenantID)

	if err := sess.Configure(ctx, tenantID, true); err != nil {
		return fmt.Errorf("configure admin session: %w", err)
	}

	return sess.ReadOnly(ctx, fn)
}

// clear resets the session variables on a context detached from the caller's
// cancellation. Its failure is logged and never replaces the primary outcome.
func (s *Service) clear(ctx context.Context, sess rowfilter.Session, tenantID string) {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CleanupTimeout)
	defer cancel()

	if err := sess.Clear(clearCtx); err != nil {
		s.log.WithContext(ctx).Errorw("failed to clear admin session variables",
			"target_tenant_id", tenantID,
			"error", err,
		)
	}
}

// write stamps and emits one audit record. Terminal and denial records are
// best-effort; the caller decides what an error means for attempting records.
func (s *Service) write(ctx context.Context, base audit.Record, outcome audit.Outcome, detail string) error {
	rec := base
	rec.ID = uuid.New()
	rec.OccurredAt = s.now()
	rec.Outcome = outcome
	rec.ErrorDetail = detail

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CleanupTimeout)
	defer cancel()

	err := s.audit.Record(auditCtx, rec)
	if err != nil {
		s.log.WithContext(ctx).Errorw("failed to write audit record",
			"outcome", string(outcome),
			"correlation_id", rec.CorrelationID.String(),
			"error", err,
		)
	}
	return err
}

// IsDenied reports whether err is the authorization failure of Execute.
func IsDenied(err error) bool {
	return apperror.IsForbidden(err)
}

// IsCanceled reports whether the guarded query ended because the caller gave up.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
