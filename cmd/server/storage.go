package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	"stockledger/internal/core/idempotency"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/register_repo"
	"stockledger/internal/infrastructure/storage/postgres/report_repo"
	"stockledger/pkg/numerator"
)

// backend bundles one storage driver's implementations of the domain ports.
type backend struct {
	txm        tx.ReadOnlyManager
	stockRepo  stock.Repository
	events     stock.EventPublisher
	ledgerRepo ledger.Repository
	alertRepo  alerts.Repository
	sequences  numerator.Store
	keys       idempotency.Store
	checks     map[string]handlers.Check
	close      func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		store := memory.NewStore()
		return &backend{
			txm:        store,
			stockRepo:  store,
			events:     store,
			ledgerRepo: store,
			alertRepo:  store,
			sequences:  store,
			keys:       memory.NewIdempotencyStore(store, cfg.App.IdempotencyTTL),
			checks:     map[string]handlers.Check{},
			close:      func() {},
		}, nil
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Storage.DatabaseURL)
	poolCfg.MaxConns = cfg.Storage.MaxConns
	poolCfg.MinConns = cfg.Storage.MinConns
	poolCfg.ApplicationName = "stockledger-api"

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	txm := postgres.NewTxManager(pool)
	return &backend{
		txm:        txm,
		stockRepo:  register_repo.NewStockRepo(txm),
		events:     postgres.NewOutboxPublisher(txm),
		ledgerRepo: report_repo.NewMovementRepo(txm),
		alertRepo:  report_repo.NewAlertRepo(txm),
		sequences:  postgres.NewSequenceStore(txm),
		keys:       postgres.NewIdempotencyStore(txm, cfg.App.IdempotencyTTL),
		checks:     map[string]handlers.Check{"database": txm.Ping},
		close:      pool.Close,
	}, nil
}

// openAlertCache returns the Redis cache when configured, the in-process one otherwise.
func openAlertCache(cfg *config.Config, checks map[string]handlers.Check) (alerts.Cache, func()) {
	if !cfg.Redis.Enabled() {
		return cache.NewLocalAlertCache(cfg.Redis.AlertsTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return cache.NewRedisAlertCache(client, cfg.Redis.AlertsTTL), func() { _ = client.Close() }
}
