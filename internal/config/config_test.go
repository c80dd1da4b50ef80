package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANTGATE_DATABASE_URL", "postgres://localhost/tg")
	t.Setenv("TENANTGATE_AUTH_SESSION_SECRET", "s3cret")
	t.Setenv("TENANTGATE_BINDING_LOOKUP_TIMEOUT", "750ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/tg", cfg.Database.URL)
	assert.Equal(t, "s3cret", cfg.Auth.SessionSecret)
	assert.Equal(t, 750*time.Millisecond, cfg.Binding.LookupTimeout)
	assert.Equal(t, "platform_super_admin", cfg.Override.SuperAdminRole)
	assert.Equal(t, 5*time.Second, cfg.Override.CleanupTimeout)
	assert.Equal(t, "tg_session", cfg.Auth.CookieName)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenantgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  env: production
  port: "9090"
database:
  url: postgres://db/tg
auth:
  session_secret: abc
override:
  super_admin_role: root_admin
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "root_admin", cfg.Override.SuperAdminRole)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_Validation(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANTGATE_AUTH_SESSION_SECRET", "s3cret")

	_, err := Load("")
	assert.ErrorContains(t, err, "database.url is required")

	t.Setenv("TENANTGATE_DATABASE_URL", "postgres://localhost/tg")
	t.Setenv("TENANTGATE_LOG_LEVEL", "chatty")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestLoadDatabase_IgnoresServerSettings(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANTGATE_DATABASE_URL", "postgres://localhost/tg")
	t.Setenv("TENANTGATE_DATABASE_APP_ROLE", "tenantgate_app")

	db, err := LoadDatabase("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/tg", db.URL)
	assert.Equal(t, "tenantgate_app", db.AppRole)
	assert.Equal(t, "tenantgate_lookup", db.LookupRole)

	_, err = Load("")
	assert.ErrorContains(t, err, "auth.session_secret is required")
}

func TestLoadDatabase_RolesMustDiffer(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANTGATE_DATABASE_URL", "postgres://localhost/tg")
	t.Setenv("TENANTGATE_DATABASE_APP_ROLE", "shared")
	t.Setenv("TENANTGATE_DATABASE_LOOKUP_ROLE", "shared")

	_, err := LoadDatabase("")
	assert.ErrorContains(t, err, "lookup_role must differ")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
