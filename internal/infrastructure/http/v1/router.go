// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantgate/internal/core/identity"
	"tenantgate/internal/core/rowfilter"
	"tenantgate/internal/domain/binding"
	"tenantgate/internal/domain/override"
	"tenantgate/internal/infrastructure/http/v1/handlers"
	"tenantgate/internal/infrastructure/http/v1/middleware"
	"tenantgate/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	// DB is pinged by the readiness probe.
	DB handlers.Pinger

	// Tokens validates identity tokens and issues/validates session tokens.
	Tokens interface {
		handlers.TokenService
		middleware.SessionValidator
	}
	Cookie handlers.CookieConfig

	Binder    handlers.TenantBinder
	Directory binding.Directory

	Sessions  rowfilter.Opener
	Repo      handlers.TenantRepository
	Overrides *override.Service
	Audit     handlers.AuditLister

	// SuperAdminRole guards the audit trail.
	SuperAdminRole string

	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.SuperAdminRole == "" {
		cfg.SuperAdminRole = identity.RoleSuperAdmin
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	base := handlers.NewBaseHandler()

	authHandler := handlers.NewAuthHandler(base, cfg.Tokens, cfg.Binder, cfg.Cookie)
	authHandler.RegisterRoutes(router.Group("/auth"))

	api := router.Group("/api/v1")
	api.Use(middleware.Authenticate(cfg.Tokens, cfg.Cookie.Name))
	api.Use(middleware.TenantLookup(cfg.Directory))
	{
		tenantHandler := handlers.NewTenantHandler(base, cfg.Sessions, cfg.Repo)
		own := api.Group("/tenant")
		own.Use(middleware.RequireAuthenticated(), middleware.RequireTenant())
		tenantHandler.RegisterRoutes(own)

		adminHandler := handlers.NewAdminHandler(base, cfg.Overrides, cfg.Repo, cfg.Audit)
		admin := api.Group("/admin")
		// Role checks for overrides happen inside the override service so
		// that refused attempts are audited.
		admin.GET("/tenants/:id/users", adminHandler.TenantUsers)
		admin.GET("/audit", middleware.RequireRole(cfg.SuperAdminRole), adminHandler.Audit)
	}

	return router
}
