package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tenantgate/internal/core/rowfilter"
	"tenantgate/pkg/logger"
)

var tracer = otel.Tracer("tenantgate/postgres")

const (
	configureSQL = `SELECT set_config('app.current_tenant', $1, false), set_config('app.is_admin', $2, false)`
	clearSQL     = `SELECT set_config('app.current_tenant', '', false), set_config('app.is_admin', 'false', false)`
	currentSQL   = `SELECT COALESCE(current_setting('app.current_tenant', true), ''), COALESCE(current_setting('app.is_admin', true), 'false')`
)

// DefaultStatementTimeout protects read-only sessions against runaway queries.
const DefaultStatementTimeout = 30 * time.Second

var discardedConns = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tenantgate_session_discarded_connections_total",
	Help: "Pinned connections destroyed because their session variables could not be confirmed neutral.",
})

// conn is the part of a pinned connection a session needs.
// *pgxpool.Conn and pgxmock connections satisfy it.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Session is a rowfilter.Session over one pinned PostgreSQL connection.
type Session struct {
	mu       sync.Mutex
	conn     conn
	release  func()
	discard  func()
	timeout  time.Duration
	dirty    bool
	released bool
}

var _ rowfilter.Session = (*Session)(nil)

func newSession(c conn, release, discard func(), timeout time.Duration) *Session {
	return &Session{conn: c, release: release, discard: discard, timeout: timeout}
}

// Configure sets the tenant and admin variables at session scope.
func (s *Session) Configure(ctx context.Context, tenantID string, isAdmin bool) error {
	ctx, span := tracer.Start(ctx, "rowfilter.configure")
	defer span.End()
	span.SetAttributes(
		attribute.String("rowfilter.tenant_id", tenantID),
		attribute.Bool("rowfilter.is_admin", isAdmin),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return rowfilter.ErrSessionReleased
	}

	// A failed round-trip may still have applied the values.
	s.dirty = true
	if _, err := s.conn.Exec(ctx, configureSQL, tenantID, formatBool(isAdmin)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set session variables: %w", err)
	}
	return nil
}

// Clear resets both variables to neutral.
func (s *Session) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "rowfilter.clear")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return rowfilter.ErrSessionReleased
	}

	if _, err := s.conn.Exec(ctx, clearSQL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("clear session variables: %w", err)
	}
	s.dirty = false
	return nil
}

// Current reads both variables back from the connection.
func (s *Session) Current(ctx context.Context) (rowfilter.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return rowfilter.Settings{}, rowfilter.ErrSessionReleased
	}

	var tenantID, isAdmin string
	if err := s.conn.QueryRow(ctx, currentSQL).Scan(&tenantID, &isAdmin); err != nil {
		return rowfilter.Settings{}, fmt.Errorf("read session variables: %w", err)
	}
	return rowfilter.Settings{TenantID: tenantID, IsAdmin: isAdmin == "true"}, nil
}

// ReadOnly runs fn inside a READ ONLY transaction with a local statement timeout.
// Session-scoped variables survive the transaction regardless of its outcome.
func (s *Session) ReadOnly(ctx context.Context, fn func(ctx context.Context, r rowfilter.Reader) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return rowfilter.ErrSessionReleased
	}

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}

	if s.timeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", s.timeout.Milliseconds())); err != nil {
			_ = tx.Rollback(context.Background())
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		// Background context so rollback completes after cancellation.
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit read-only transaction: %w", err)
	}
	return nil
}

// Release returns a clean connection to the pool and destroys a dirty one.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true

	if s.dirty {
		discardedConns.Inc()
		s.discard()
		return
	}
	s.release()
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// SessionOpener pins pool connections as rowfilter sessions.
type SessionOpener struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

var _ rowfilter.Opener = (*SessionOpener)(nil)

// NewSessionOpener creates an opener over pool.
func NewSessionOpener(pool *Pool, statementTimeout time.Duration) *SessionOpener {
	return &SessionOpener{pool: pool.Pool, statementTimeout: statementTimeout}
}

// Open acquires and pins one connection.
func (o *SessionOpener) Open(ctx context.Context) (rowfilter.Session, error) {
	c, err := o.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	discard := func() {
		raw := c.Hijack()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := raw.Close(closeCtx); err != nil {
			logger.Warn(ctx, "failed to close discarded connection", "error", err)
		}
	}
	return newSession(c, c.Release, discard, o.statementTimeout), nil
}
