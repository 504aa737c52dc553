// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/idempotency"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	Stock  *stock.Service
	Ledger *ledger.Service
	Alerts *alerts.Service
	Audit  *audit.Service

	// HealthChecks are probed by /health/ready, keyed by dependency name.
	HealthChecks map[string]handlers.Check

	// DefaultLocation fills requests that name no location.
	DefaultLocation string

	// Idempotency guards stock writes carrying X-Idempotency-Key. Optional.
	Idempotency idempotency.Store
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.UserContext())
	{
		baseHandler := handlers.NewBaseHandler()

		stockHandler := handlers.NewStockHandler(baseHandler, cfg.Stock, cfg.DefaultLocation)
		stockGroup := v1.Group("/stock")
		stockGroup.Use(middleware.Idempotency(cfg.Idempotency))
		RegisterStockRoutes(stockGroup, stockHandler)

		reportsHandler := handlers.NewReportsHandler(baseHandler, cfg.Ledger, cfg.Alerts, cfg.Audit)
		RegisterReportRoutes(v1, reportsHandler)
	}

	return router
}
