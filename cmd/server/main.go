// Package main is the entry point for the stock ledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"stockledger/internal/config"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stock"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/observability"
	"stockledger/pkg/logger"
	"stockledger/pkg/numerator"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting stockledger server", "driver", cfg.Storage.Driver, "env", cfg.App.Env)

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:    "stockledger-api",
		ServiceVersion: version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		log.Fatalw("failed to set up tracing", "error", err)
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
	}
	defer be.close()

	alertCache, closeCache := openAlertCache(cfg, be.checks)
	defer closeCache()

	// --- Services ---
	walkIns := numerator.New(be.sequences, numerator.WalkInConfig())
	stockService := stock.NewService(be.txm, be.stockRepo, be.events, stock.WithWalkInNumbers(walkIns))
	ledgerService := ledger.NewService(be.txm, be.ledgerRepo, ledger.WithDisplayLocation(cfg.Display.Location))
	alertService := alerts.NewService(be.txm, be.alertRepo, alertCache)
	auditService := audit.NewService(be.txm, ledgerService, alertService)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:          log,
		Stock:           stockService,
		Ledger:          ledgerService,
		Alerts:          alertService,
		Audit:           auditService,
		HealthChecks:    be.checks,
		DefaultLocation: cfg.App.DefaultLocation,
		Idempotency:     be.keys,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      gzhttp.GzipHandler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
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
		log.Errorw("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown failed", "error", err)
	}

	log.Info("server stopped")
}
