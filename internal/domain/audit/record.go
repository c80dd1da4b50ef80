// Package audit defines the append-only trail written for admin overrides.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantgate/pkg/logger"
)

// Outcome of an audited step.
type Outcome string

const (
	OutcomeAttempting Outcome = "attempting"
	OutcomeDenied     Outcome = "denied"
	OutcomeSuccess    Outcome = "success"
	OutcomeFailed     Outcome = "failed"
)

// IsTerminal reports whether the outcome closes an override call.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailed
}

// OperationReadOnly is the only operation kind the override path performs.
const OperationReadOnly = "read-only"

// Record is one audit entry. Records are never updated or deleted.
type Record struct {
	ID             uuid.UUID `db:"id" json:"id"`
	CorrelationID  uuid.UUID `db:"correlation_id" json:"correlationId"`
	OccurredAt     time.Time `db:"occurred_at" json:"occurredAt"`
	AdminID        string    `db:"admin_id" json:"adminId"`
	TargetTenantID string    `db:"target_tenant_id" json:"targetTenantId"`
	Reason         string    `db:"reason" json:"reason"`
	Operation      string    `db:"operation" json:"operation"`
	Outcome        Outcome   `db:"outcome" json:"outcome"`
	ErrorDetail    string    `db:"error_detail" json:"errorDetail,omitempty"`
	RequestID      string    `db:"request_id" json:"requestId,omitempty"`
}

// Sink receives audit records.
type Sink interface {
	Record(ctx context.Context, r Record) error
}

// LogSink writes records as structured log entries. It never fails.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink on top of log.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("admin-audit")}
}

func (s *LogSink) Record(ctx context.Context, r Record) error {
	kv := []any{
		"audit_id", r.ID.String(),
		"correlation_id", r.CorrelationID.String(),
		"occurred_at", r.OccurredAt,
		"admin_id", r.AdminID,
		"target_tenant_id", r.TargetTenantID,
		"reason", r.Reason,
		"operation", r.Operation,
		"outcome", string(r.Outcome),
	}
	if r.RequestID != "" {
		kv = append(kv, "request_id", r.RequestID)
	}
	if r.ErrorDetail != "" {
		kv = append(kv, "error", r.ErrorDetail)
	}

	switch r.Outcome {
	case OutcomeDenied, OutcomeFailed:
		s.log.Warnw("admin override audit", kv...)
	default:
		s.log.Infow("admin override audit", kv...)
	}
	return nil
}

// Fanout writes each record to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps records in memory. Suitable for tests.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	// Err, when set, is returned for records whose outcome matches FailOn
	// (or for every record when FailOn is empty).
	Err    error
	FailOn Outcome
}

func (m *MemorySink) Record(ctx context.Context, r Record) error {
	if m.Err != nil && (m.FailOn == "" || m.FailOn == r.Outcome) {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

// Records returns a copy of everything recorded.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Outcomes returns the recorded outcomes in order.
func (m *MemorySink) Outcomes() []Outcome {
	recs := m.Records()
	out := make([]Outcome, len(recs))
	for i, r := range recs {
		out[i] = r.Outcome
	}
	return out
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = Fanout(nil)
	_ Sink = (*MemorySink)(nil)
)
