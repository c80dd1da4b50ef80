package tenant_repo

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/core/apperror"
	"tenantgate/internal/core/rowfilter"
	"tenantgate/internal/core/tenant"
)

var created = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxConnIface {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mock.Close(context.Background()) })
	return mock
}

func TestRepo_GetTenant(t *testing.T) {
	mock := newMock(t)
	repo := New(rowfilter.MustPolicy())

	mock.ExpectQuery(`SELECT id, display_name, tenant_type, created_at FROM tenants WHERE id = \$1`).
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows(tenantColumns).AddRow("t1", "Acme", tenant.TypeOrganization, created))

	got, err := repo.GetTenant(context.Background(), mock, rowfilter.Settings{TenantID: "t1"}, "t1")
	require.NoError(t, err)
	assert.Equal(t, &tenant.Tenant{ID: "t1", DisplayName: "Acme", Type: tenant.TypeOrganization, CreatedAt: created}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_GetTenantHidesForeignRow(t *testing.T) {
	mock := newMock(t)
	repo := New(rowfilter.MustPolicy())

	// The store returns a row the scope may not see; the app layer still refuses it.
	mock.ExpectQuery(`FROM tenants`).
		WithArgs("t2").
		WillReturnRows(pgxmock.NewRows(tenantColumns).AddRow("t2", "Other", tenant.TypeIndividual, created))

	_, err := repo.GetTenant(context.Background(), mock, rowfilter.Settings{TenantID: "t1"}, "t2")
	assert.True(t, apperror.IsNotFound(err))
}

func TestRepo_GetTenantNotFound(t *testing.T) {
	mock := newMock(t)
	repo := New(rowfilter.MustPolicy())

	mock.ExpectQuery(`FROM tenants`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(tenantColumns))

	_, err := repo.GetTenant(context.Background(), mock, rowfilter.Settings{TenantID: "t1"}, "missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestRepo_ListUsers(t *testing.T) {
	mock := newMock(t)
	repo := New(rowfilter.MustPolicy())

	mock.ExpectQuery(`SELECT id, tenant_id, email, display_name, created_at FROM users WHERE tenant_id = \$1 ORDER BY email`).
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows(userColumns).
			AddRow("u1", "t1", "a@example.com", "A", created).
			AddRow("u2", "t2", "b@example.com", "B", created).
			AddRow("u3", "t1", "c@example.com", "C", created))

	users, err := repo.ListUsers(context.Background(), mock, rowfilter.Settings{TenantID: "t1"}, "t1")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u3", users[1].ID)
}

func TestRepo_ListUsersAsAdmin(t *testing.T) {
	mock := newMock(t)
	repo := New(rowfilter.MustPolicy())

	mock.ExpectQuery(`FROM users`).
		WithArgs("t2").
		WillReturnRows(pgxmock.NewRows(userColumns).AddRow("u2", "t2", "b@example.com", "B", created))

	users, err := repo.ListUsers(context.Background(), mock, rowfilter.Settings{TenantID: "t2", IsAdmin: true}, "t2")
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
