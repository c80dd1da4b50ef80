package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tenantgate/pkg/logger"
)

func sampleRecord(outcome Outcome) Record {
	return Record{
		ID:             uuid.New(),
		CorrelationID:  uuid.New(),
		OccurredAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		AdminID:        "admin-1",
		TargetTenantID: "t1",
		Reason:         "ticket 42",
		Operation:      OperationReadOnly,
		Outcome:        outcome,
	}
}

func TestLogSink_WritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(logger.NewFromZap(zap.New(core)))

	require.NoError(t, sink.Record(context.Background(), sampleRecord(OutcomeAttempting)))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "admin-1", fields["admin_id"])
	assert.Equal(t, "t1", fields["target_tenant_id"])
	assert.Equal(t, "ticket 42", fields["reason"])
	assert.Equal(t, OperationReadOnly, fields["operation"])
	assert.Equal(t, "attempting", fields["outcome"])
	assert.Contains(t, fields, "occurred_at")
}

func TestLogSink_DeniedAndFailedAreWarnings(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(logger.NewFromZap(zap.New(core)))

	failed := sampleRecord(OutcomeFailed)
	failed.ErrorDetail = "boom"
	require.NoError(t, sink.Record(context.Background(), sampleRecord(OutcomeDenied)))
	require.NoError(t, sink.Record(context.Background(), failed))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestFanout_JoinsErrors(t *testing.T) {
	ok := &MemorySink{}
	broken := &MemorySink{Err: errors.New("disk full")}

	err := Fanout{ok, broken}.Record(context.Background(), sampleRecord(OutcomeSuccess))

	assert.EqualError(t, err, "disk full")
	assert.Equal(t, []Outcome{OutcomeSuccess}, ok.Outcomes())
}

func TestOutcome_IsTerminal(t *testing.T) {
	assert.True(t, OutcomeSuccess.IsTerminal())
	assert.True(t, OutcomeFailed.IsTerminal())
	assert.False(t, OutcomeAttempting.IsTerminal())
	assert.False(t, OutcomeDenied.IsTerminal())
}
