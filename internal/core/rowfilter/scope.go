package rowfilter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tenantgate/pkg/logger"
)

// ClearTimeout bounds the cleanup round-trip issued after a scoped operation.
const ClearTimeout = 5 * time.Second

// WithTenant runs fn read-only with the session scoped to tenantID.
// An empty tenantID is refused before any connection is pinned.
func WithTenant(ctx context.Context, opener Opener, tenantID string, fn func(ctx context.Context, r Reader) error) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrNoTenant
	}

	sess, err := opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Release()

	defer func() {
		clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ClearTimeout)
		defer cancel()
		if err := sess.Clear(clearCtx); err != nil {
			logger.Warn(ctx, "failed to clear tenant session", "tenant_id", tenantID, "error", err)
		}
	}()

	if err := sess.Configure(ctx, tenantID, false); err != nil {
		return fmt.Errorf("configure session: %w", err)
	}

	return sess.ReadOnly(ctx, fn)
}
