package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "tenantgate/internal/core/context"
	"tenantgate/internal/core/identity"
	"tenantgate/internal/core/tenant"
)

func TestWithContext_AddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromZap(zap.New(core))

	ctx := context.Background()
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext(ctx, "req-1"))
	ctx = identity.WithIdentity(ctx, identity.New(map[string][]string{
		identity.ClaimSubject:  {"u1"},
		identity.ClaimTenantID: {"t1"},
	}))

	log.WithContext(ctx).Infow("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "t1", fields["tenant_id"])
	assert.Equal(t, tenant.SourceClaim, fields["tenant_source"])
}

func TestFromContext_UsesAttachedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), NewFromZap(zap.New(core)).WithComponent("binding"))

	Info(ctx, "bound")
	Debug(ctx, "dropped")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "binding", entries[0].ContextMap()["component"])
}
