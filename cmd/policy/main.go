// Package main provides the row-level security policy CLI.
// Usage: policy apply [--config file]
//        policy print [--config file]
//        policy check --tenant <tenant-id> [--admin] [--config file]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tenantgate/internal/config"
	"tenantgate/internal/core/rowfilter"
	"tenantgate/internal/infrastructure/storage/postgres"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	ctx := context.Background()

	switch os.Args[1] {
	case "apply":
		applyPolicies(ctx, os.Args[2:])
	case "print":
		printPolicies(os.Args[2:])
	case "check":
		checkSession(ctx, os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tenantgate row-level security CLI

Usage:
  policy <command> [options]

Commands:
  apply     Create tables, grants, RLS policies and the login lookup function
  print     Print the DDL without executing it
  check     Verify the connection role, then configure a pinned session,
            read it back and verify it clears
  help      Show this help

Options:
  --config <file>   Config file (defaults to ./tenantgate.yaml when present)

Configuration (file keys or TENANTGATE_* environment variables):
  database.url          Connection string (TENANTGATE_DATABASE_URL)
  database.app_role     Role the server connects as; granted table access
  database.lookup_role  BYPASSRLS role that owns app_tenant_for_email

Examples:
  policy apply
  policy print --config /etc/tenantgate/tenantgate.yaml
  policy check --tenant 4f1c...`)
}

func loadConfig(path string) *config.DatabaseConfig {
	cfg, err := config.LoadDatabase(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func roles(cfg *config.DatabaseConfig) postgres.Roles {
	return postgres.Roles{App: cfg.AppRole, Lookup: cfg.LookupRole}
}

func getPool(ctx context.Context, cfg *config.DatabaseConfig) *postgres.Pool {
	poolCfg := postgres.DefaultPoolConfig(cfg.URL)
	poolCfg.MinConns = 0
	poolCfg.MaxConns = 2

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return pool
}

func applyPolicies(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	cfgFile := fs.String("config", "", "config file")
	_ = fs.Parse(args)

	cfg := loadConfig(*cfgFile)
	if cfg.AppRole == "" {
		fmt.Println("Warning: database.app_role is empty; no table privileges will be granted")
	}

	pool := getPool(ctx, cfg)
	defer pool.Close()

	if err := postgres.ApplyPolicies(ctx, pool, postgres.DefaultTables, roles(cfg)); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Applied policies to %d tables\n", len(postgres.DefaultTables))
}

func printPolicies(args []string) {
	fs := flag.NewFlagSet("print", flag.ExitOnError)
	cfgFile := fs.String("config", "", "config file")
	_ = fs.Parse(args)

	for _, stmt := range postgres.AllDDL(postgres.DefaultTables, roles(loadConfig(*cfgFile))) {
		fmt.Println(strings.TrimSpace(stmt) + ";")
		fmt.Println()
	}
}

func checkSession(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	cfgFile := fs.String("config", "", "config file")
	tenantID := fs.String("tenant", "", "tenant id to configure")
	admin := fs.Bool("admin", false, "also set the admin flag")
	_ = fs.Parse(args)

	if strings.TrimSpace(*tenantID) == "" {
		fmt.Println("Error: --tenant is required")
		os.Exit(1)
	}

	cfg := loadConfig(*cfgFile)
	pool := getPool(ctx, cfg)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := postgres.CheckRole(ctx, pool); err != nil {
		fmt.Printf("FAIL: %v\n", err)
		os.Exit(1)
	}
	if err := runCheck(ctx, postgres.NewSessionOpener(pool, cfg.StatementTimeout), *tenantID, *admin); err != nil {
		fmt.Printf("FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK: session variables configured, read back and cleared")
}

func runCheck(ctx context.Context, opener rowfilter.Opener, tenantID string, admin bool) error {
	sess, err := opener.Open(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()

	if err := sess.Configure(ctx, tenantID, admin); err != nil {
		return err
	}
	got, err := sess.Current(ctx)
	if err != nil {
		return err
	}
	want := rowfilter.Settings{TenantID: tenantID, IsAdmin: admin}
	if got != want {
		return fmt.Errorf("configured %+v, read back %+v", want, got)
	}
	fmt.Printf("configured: tenant=%q is_admin=%t\n", got.TenantID, got.IsAdmin)

	if err := sess.Clear(ctx); err != nil {
		return err
	}
	got, err = sess.Current(ctx)
	if err != nil {
		return err
	}
	if !got.IsNeutral() {
		return fmt.Errorf("variables not neutral after clear: %+v", got)
	}
	return nil
}
