package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/core/rowfilter"
)

type releaseProbe struct {
	released  bool
	discarded bool
}

func newMockSession(t *testing.T) (*Session, pgxmock.PgxConnIface, *releaseProbe) {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mock.Close(context.Background()) })

	probe := &releaseProbe{}
	s := newSession(mock,
		func() { probe.released = true },
		func() { probe.discarded = true },
		2*time.Second,
	)
	return s, mock, probe
}

func TestSession_ConfigureClearRelease(t *testing.T) {
	s, mock, probe := newMockSession(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(configureSQL)).
		WithArgs("t1", "true").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta(currentSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"tenant", "is_admin"}).AddRow("t1", "true"))
	mock.ExpectExec(regexp.QuoteMeta(clearSQL)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta(currentSQL)).
		WillReturnRows(pgxmock.NewRows([]string{"tenant", "is_admin"}).AddRow("", "false"))

	require.NoError(t, s.Configure(ctx, "t1", true))
	got, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, rowfilter.Settings{TenantID: "t1", IsAdmin: true}, got)

	require.NoError(t, s.Clear(ctx))
	got, err = s.Current(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsNeutral())

	s.Release()
	assert.True(t, probe.released)
	assert.False(t, probe.discarded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_ReleaseDiscardsDirtyConnection(t *testing.T) {
	s, mock, probe := newMockSession(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(configureSQL)).
		WithArgs("t1", "false").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(regexp.QuoteMeta(clearSQL)).
		WillReturnError(errors.New("conn reset"))

	require.NoError(t, s.Configure(ctx, "t1", false))
	assert.Error(t, s.Clear(ctx))

	s.Release()
	s.Release()
	assert.True(t, probe.discarded)
	assert.False(t, probe.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_FailedConfigureIsTreatedAsDirty(t *testing.T) {
	s, mock, probe := newMockSession(t)

	mock.ExpectExec(regexp.QuoteMeta(configureSQL)).
		WithArgs("t1", "true").
		WillReturnError(errors.New("timeout"))

	assert.Error(t, s.Configure(context.Background(), "t1", true))
	s.Release()
	assert.True(t, probe.discarded)
}

func TestSession_ReadOnlyCommits(t *testing.T) {
	s, mock, _ := newMockSession(t)

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout = 2000")).
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM users")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectCommit()

	var n int64
	err := s.ReadOnly(context.Background(), func(ctx context.Context, r rowfilter.Reader) error {
		return r.QueryRow(ctx, "SELECT count(*) FROM users").Scan(&n)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_ReadOnlyRollsBackOnError(t *testing.T) {
	s, mock, _ := newMockSession(t)
	boom := errors.New("boom")

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
	mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectRollback()

	err := s.ReadOnly(context.Background(), func(ctx context.Context, r rowfilter.Reader) error {
		return boom
	})
	assert.Equal(t, boom, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSession_UseAfterRelease(t *testing.T) {
	s, _, _ := newMockSession(t)
	s.Release()

	ctx := context.Background()
	assert.ErrorIs(t, s.Configure(ctx, "t1", false), rowfilter.ErrSessionReleased)
	assert.ErrorIs(t, s.Clear(ctx), rowfilter.ErrSessionReleased)
	_, err := s.Current(ctx)
	assert.ErrorIs(t, err, rowfilter.ErrSessionReleased)
}
