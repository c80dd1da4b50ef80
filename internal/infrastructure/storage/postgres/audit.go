package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/klauspost/compress/zstd"

	"tenantgate/internal/domain/audit"
)

const auditTable = "admin_audit_log"

// DefaultCompressThreshold is the error detail size above which it is stored zstd-compressed.
const DefaultCompressThreshold = 4 * 1024

var auditColumns = []string{
	"id", "correlation_id", "occurred_at", "admin_id", "target_tenant_id",
	"reason", "operation", "outcome", "error_detail", "error_detail_zstd", "request_id",
}

// DB is the query surface of a pool or a single connection.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuditStore persists admin override records in the shared database.
type AuditStore struct {
	db                DB
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ audit.Sink = (*AuditStore)(nil)

// NewAuditStore creates an audit store.
func NewAuditStore(db DB) (*AuditStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditStore{
		db:                db,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
	}, nil
}

// Record appends one record.
func (s *AuditStore) Record(ctx context.Context, r audit.Record) error {
	detail := r.ErrorDetail
	var compressed []byte
	if len(detail) > s.compressThreshold {
		compressed = s.encoder.EncodeAll([]byte(detail), nil)
		detail = ""
	}

	sql, args, err := sq.Insert(auditTable).
		Columns(auditColumns...).
		Values(
			r.ID, r.CorrelationID, r.OccurredAt, r.AdminID, r.TargetTenantID,
			r.Reason, r.Operation, string(r.Outcome), detail, compressed, r.RequestID,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// AuditFilter narrows List.
type AuditFilter struct {
	TargetTenantID string
	AdminID        string
	CorrelationID  string
	Limit          uint64
}

type auditRow struct {
	audit.Record
	ErrorDetailZstd []byte `db:"error_detail_zstd"`
}

// List returns records newest first.
func (s *AuditStore) List(ctx context.Context, f AuditFilter) ([]audit.Record, error) {
	q := sq.Select(auditColumns...).
		From(auditTable).
		OrderBy("occurred_at DESC", "id").
		PlaceholderFormat(sq.Dollar)

	if f.TargetTenantID != "" {
		q = q.Where(sq.Eq{"target_tenant_id": f.TargetTenantID})
	}
	if f.AdminID != "" {
		q = q.Where(sq.Eq{"admin_id": f.AdminID})
	}
	if f.CorrelationID != "" {
		q = q.Where(sq.Eq{"correlation_id": f.CorrelationID})
	}
	limit := f.Limit
	if limit == 0 || limit > 500 {
		limit = 100
	}
	q = q.Limit(limit)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	var rows []auditRow
	if err := pgxscan.Select(ctx, s.db, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}

	out := make([]audit.Record, 0, len(rows))
	for _, row := range rows {
		rec := row.Record
		if len(row.ErrorDetailZstd) > 0 {
			detail, err := s.decoder.DecodeAll(row.ErrorDetailZstd, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress error detail of %s: %w", rec.ID, err)
			}
			rec.ErrorDetail = string(detail)
		}
		out = append(out, rec)
	}
	return out, nil
}
