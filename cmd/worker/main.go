// Package main is the entry point for the stock ledger background worker.
// It relays the transactional outbox to Kafka.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockledger/internal/config"
	"stockledger/internal/infrastructure/messaging/kafka"
	"stockledger/internal/infrastructure/observability"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

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

	if cfg.Storage.Driver != config.DriverPostgres {
		log.Fatalw("the outbox worker requires the postgres driver", "driver", cfg.Storage.Driver)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatalw("KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting stockledger outbox worker")

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: "stockledger-worker",
		Environment: cfg.App.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		log.Fatalw("failed to set up tracing", "error", err)
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Storage.DatabaseURL)
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.ApplicationName = "stockledger-worker"

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	publisher := kafka.NewPublisher(kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		BatchTimeout: 10 * time.Millisecond,
	}))
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warnw("kafka writer close failed", "error", err)
		}
	}()

	relay := postgres.NewOutboxRelay(pool.Unwrap(), cfg.Outbox.BatchSize, publisher)
	keys := postgres.NewIdempotencyStore(postgres.NewTxManager(pool), cfg.App.IdempotencyTTL)
	worker := NewOutboxWorker(pool.Unwrap(), relay, keys, cfg.Outbox, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown failed", "error", err)
	}

	log.Info("worker stopped")
}

// OutboxWorker drives the outbox relay and the housekeeping of system tables.
type OutboxWorker struct {
	pool  *pgxpool.Pool
	relay *postgres.OutboxRelay
	keys  *postgres.IdempotencyStore
	cfg   config.OutboxConfig
	log   *logger.Logger
}

func NewOutboxWorker(pool *pgxpool.Pool, relay *postgres.OutboxRelay, keys *postgres.IdempotencyStore, cfg config.OutboxConfig, log *logger.Logger) *OutboxWorker {
	return &OutboxWorker{
		pool:  pool,
		relay: relay,
		keys:  keys,
		cfg:   cfg,
		log:   log.WithComponent("outbox"),
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by the next one.
func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-cleanupTicker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *OutboxWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("relayed outbox batch", "count", n)
		}
		if n < w.cfg.BatchSize {
			return
		}
	}
}

func (w *OutboxWorker) cleanup(ctx context.Context) {
	if moved, err := w.relay.MoveToDLQ(ctx); err != nil {
		w.log.Errorw("move to dead letter table failed", "error", err)
	} else if moved > 0 {
		w.log.Warnw("parked outbox messages moved to dead letter table", "count", moved)
	}

	if purged, err := w.relay.PurgePublished(ctx, time.Now().UTC().Add(-w.cfg.Retention)); err != nil {
		w.log.Errorw("purge published outbox messages failed", "error", err)
	} else if purged > 0 {
		w.log.Infow("purged published outbox messages", "count", purged)
	}

	if removed, err := w.keys.CleanupExpired(ctx); err != nil {
		w.log.Errorw("cleanup idempotency keys failed", "error", err)
	} else if removed > 0 {
		w.log.Infow("removed expired idempotency keys", "count", removed)
	}

	postgres.LogPoolStats(ctx, w.pool)
}
