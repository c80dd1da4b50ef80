// Package main is the entry point for the tenantgate API server.
// All tenants share one database; isolation is enforced by row-level security.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"tenantgate/internal/config"
	"tenantgate/internal/core/rowfilter"
	"tenantgate/internal/domain/audit"
	"tenantgate/internal/domain/auth"
	"tenantgate/internal/domain/binding"
	"tenantgate/internal/domain/override"
	v1 "tenantgate/internal/infrastructure/http/v1"
	"tenantgate/internal/infrastructure/http/v1/handlers"
	"tenantgate/internal/infrastructure/storage/postgres"
	"tenantgate/internal/infrastructure/storage/postgres/tenant_repo"
	"tenantgate/pkg/logger"
)

func main() {
	cfgFile := flag.String("config", "", "path to config file")
	flag.Parse()

	// .env is optional; real environment wins.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = logger.WithLogger(ctx, log)
	log.Info("starting tenantgate server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	if err := postgres.CheckRole(ctx, pool); err != nil {
		log.Fatalw("refusing to serve with a role that bypasses row-level security", "error", err)
	}
	if err := postgres.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool.Pool); err != nil {
		log.Warnw("pool metrics not registered", "error", err)
	}
	log.Info("database connection established")

	sessions := postgres.NewSessionOpener(pool, cfg.Database.StatementTimeout)
	directory := postgres.NewDirectory(pool)
	repo := tenant_repo.New(rowfilter.MustPolicy())

	// --- Audit ---
	store, err := postgres.NewAuditStore(pool)
	if err != nil {
		log.Fatalw("failed to create audit store", "error", err)
	}
	sink := audit.Fanout{audit.NewLogSink(log), store}

	// --- Services ---
	jwtCfg := auth.DefaultJWTConfig(cfg.Auth.SessionSecret)
	jwtCfg.SessionTTL = cfg.Auth.SessionTTL
	jwtCfg.IdPSecret = cfg.Auth.IdPSecret
	jwtCfg.IdPIssuer = cfg.Auth.IdPIssuer
	jwtCfg.IdPAudience = cfg.Auth.IdPAudience
	jwtService := auth.NewJWTService(jwtCfg)

	binder := binding.NewBinder(directory, log, binding.Config{
		AppPath:        cfg.Binding.AppPath,
		OnboardingPath: cfg.Binding.OnboardingPath,
		LookupTimeout:  cfg.Binding.LookupTimeout,
	})

	overrides := override.NewService(sessions, sink, log, override.Config{
		SuperAdminRole: cfg.Override.SuperAdminRole,
		CleanupTimeout: cfg.Override.CleanupTimeout,
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger: log,
		DB:     pool,
		Tokens: jwtService,
		Cookie: handlers.CookieConfig{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.Auth.CookieSecure,
		},
		Binder:         binder,
		Directory:      directory,
		Sessions:       sessions,
		Repo:           repo,
		Overrides:      overrides,
		Audit:          store,
		SuperAdminRole: cfg.Override.SuperAdminRole,
		Development:    cfg.IsDevelopment(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port, "env", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	postgres.LogPoolStats(ctx, pool.Pool)
	log.Info("server stopped")
}
