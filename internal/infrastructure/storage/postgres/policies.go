package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TableSpec names a tenant-scoped table and its owning-tenant column.
type TableSpec struct {
	Name         string
	TenantColumn string
}

// DefaultTables are the tenant-scoped tables of the shared schema.
var DefaultTables = []TableSpec{
	{Name: "tenants", TenantColumn: "id"},
	{Name: "users", TenantColumn: "tenant_id"},
}

// SchemaDDL creates the shared tables. Idempotent.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS tenants (
    id           text PRIMARY KEY,
    display_name text NOT NULL,
    tenant_type  text NOT NULL DEFAULT 'organization',
    created_at   timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
    id           text PRIMARY KEY,
    tenant_id    text NOT NULL REFERENCES tenants(id),
    email        text NOT NULL,
    display_name text NOT NULL DEFAULT '',
    created_at   timestamptz NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email));

CREATE TABLE IF NOT EXISTS admin_audit_log (
    id                 uuid PRIMARY KEY,
    correlation_id     uuid NOT NULL,
    occurred_at        timestamptz NOT NULL,
    admin_id           text NOT NULL,
    target_tenant_id   text NOT NULL,
    reason             text NOT NULL,
    operation          text NOT NULL,
    outcome            text NOT NULL,
    error_detail       text NOT NULL DEFAULT '',
    error_detail_zstd  bytea,
    request_id         text NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS admin_audit_log_occurred_idx ON admin_audit_log (occurred_at DESC);
CREATE INDEX IF NOT EXISTS admin_audit_log_tenant_idx ON admin_audit_log (target_tenant_id, occurred_at DESC);
`

// tenantExpr and adminExpr read the session variables; a missing variable
// behaves like the neutral value.
const (
	tenantExpr = `current_setting('app.current_tenant', true)`
	adminExpr  = `coalesce(current_setting('app.is_admin', true), 'false') = 'true'`
)

// PolicyDDL returns the statements that enable row-level security on tables.
// Reads pass for the active tenant or while the admin flag is set; writes pass
// only for the active tenant and never while the admin flag is set.
func PolicyDDL(tables []TableSpec) []string {
	var stmts []string
	for _, t := range tables {
		table := pgx.Identifier{t.Name}.Sanitize()
		col := pgx.Identifier{t.TenantColumn}.Sanitize() + "::text"
		read := fmt.Sprintf("%s <> '' AND (%s = %s OR %s)", col, col, tenantExpr, adminExpr)
		write := fmt.Sprintf("NOT (%s) AND %s <> '' AND %s = %s", adminExpr, col, col, tenantExpr)

		stmts = append(stmts,
			fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", table),
			fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", table),
		)
		for _, p := range []struct{ name, cmd, clause string }{
			{"read", "SELECT", fmt.Sprintf("USING (%s)", read)},
			{"insert", "INSERT", fmt.Sprintf("WITH CHECK (%s)", write)},
			{"update", "UPDATE", fmt.Sprintf("USING (%s) WITH CHECK (%s)", write, write)},
			{"delete", "DELETE", fmt.Sprintf("USING (%s)", write)},
		} {
			name := pgx.Identifier{fmt.Sprintf("%s_tenant_%s", t.Name, p.name)}.Sanitize()
			stmts = append(stmts,
				fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", name, table),
				fmt.Sprintf("CREATE POLICY %s ON %s FOR %s %s", name, table, p.cmd, p.clause),
			)
		}
	}
	return stmts
}

// Roles names the database roles the DDL grants to.
type Roles struct {
	// App is the role the server connects as. It must not be a superuser
	// and must not have BYPASSRLS.
	App string
	// Lookup owns app_tenant_for_email. It needs BYPASSRLS because the
	// tables force row-level security even on their owner.
	Lookup string
}

// GrantDDL gives the app role the table privileges the server needs:
// tenant reads and the append-only audit log.
func GrantDDL(roles Roles) []string {
	if roles.App == "" {
		return nil
	}
	app := pgx.Identifier{roles.App}.Sanitize()
	return []string{
		fmt.Sprintf("GRANT SELECT ON tenants, users TO %s", app),
		fmt.Sprintf("GRANT SELECT, INSERT ON admin_audit_log TO %s", app),
	}
}

// BypassDDL installs the login-time email lookup. It runs with the rights of
// the lookup role so it can see every tenant's users, and returns only a
// tenant id. Without a lookup role the function runs as the applying user,
// which then needs BYPASSRLS itself.
func BypassDDL(roles Roles) []string {
	var stmts []string
	if roles.Lookup != "" {
		lookup := pgx.Identifier{roles.Lookup}.Sanitize()
		stmts = append(stmts,
			fmt.Sprintf(`DO $$
BEGIN
    IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = %s) THEN
        CREATE ROLE %s NOLOGIN BYPASSRLS;
    END IF;
END
$$`, quoteLiteral(roles.Lookup), lookup),
			fmt.Sprintf("ALTER ROLE %s NOLOGIN BYPASSRLS", lookup),
			fmt.Sprintf("GRANT SELECT ON users TO %s", lookup),
		)
	}
	stmts = append(stmts, `CREATE OR REPLACE FUNCTION app_tenant_for_email(p_email text) RETURNS text
LANGUAGE sql STABLE SECURITY DEFINER SET search_path = public AS $$
    SELECT tenant_id FROM users WHERE lower(email) = lower(p_email) LIMIT 1
$$`)
	if roles.Lookup != "" {
		stmts = append(stmts, fmt.Sprintf("ALTER FUNCTION app_tenant_for_email(text) OWNER TO %s",
			pgx.Identifier{roles.Lookup}.Sanitize()))
	}
	stmts = append(stmts, `REVOKE ALL ON FUNCTION app_tenant_for_email(text) FROM PUBLIC`)
	if roles.App != "" {
		stmts = append(stmts, fmt.Sprintf("GRANT EXECUTE ON FUNCTION app_tenant_for_email(text) TO %s",
			pgx.Identifier{roles.App}.Sanitize()))
	}
	return stmts
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// AllDDL returns schema, policy, grant and bypass statements in apply order.
func AllDDL(tables []TableSpec, roles Roles) []string {
	stmts := []string{strings.TrimSpace(SchemaDDL)}
	stmts = append(stmts, PolicyDDL(tables)...)
	stmts = append(stmts, GrantDDL(roles)...)
	return append(stmts, BypassDDL(roles)...)
}

// Execer runs DDL.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ApplyPolicies executes AllDDL in order.
func ApplyPolicies(ctx context.Context, db Execer, tables []TableSpec, roles Roles) error {
	for i, stmt := range AllDDL(tables, roles) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply statement %d: %w", i+1, err)
		}
	}
	return nil
}

// ErrPrivilegedRole is returned by CheckRole when row-level security would not apply.
var ErrPrivilegedRole = errors.New("database role bypasses row-level security")

const roleSQL = `SELECT current_user::text, rolsuper, rolbypassrls FROM pg_roles WHERE rolname = current_user`

// RowQuerier runs single-row queries.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CheckRole refuses a connection role that is a superuser or has BYPASSRLS:
// tenant policies would silently not apply to it.
func CheckRole(ctx context.Context, db RowQuerier) error {
	var (
		name             string
		super, bypassRLS bool
	)
	if err := db.QueryRow(ctx, roleSQL).Scan(&name, &super, &bypassRLS); err != nil {
		return fmt.Errorf("read connection role: %w", err)
	}
	if super || bypassRLS {
		return fmt.Errorf("%w: role %q (superuser=%t, bypassrls=%t)", ErrPrivilegedRole, name, super, bypassRLS)
	}
	return nil
}
