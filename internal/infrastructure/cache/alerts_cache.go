// Package cache keeps the last computed alert report for a short TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/domain/alerts"
)

// DefaultAlertsKey is the Redis key of the cached report.
const DefaultAlertsKey = "stockledger:alerts:report"

var (
	_ alerts.Cache = (*RedisAlertCache)(nil)
	_ alerts.Cache = (*LocalAlertCache)(nil)
)

// RedisAlertCache stores the report as JSON in Redis. Several API replicas share it.
type RedisAlertCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisAlertCache creates a Redis-backed alert cache.
func NewRedisAlertCache(client redis.UniversalClient, ttl time.Duration) *RedisAlertCache {
	return &RedisAlertCache{client: client, key: DefaultAlertsKey, ttl: ttl}
}

// Get returns the cached report. A missing key is a miss, not an error.
func (c *RedisAlertCache) Get(ctx context.Context) (*alerts.Report, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}

	var report alerts.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, fmt.Errorf("decode cached report: %w", err)
	}
	return &report, true, nil
}

// Set stores report with the configured TTL.
func (c *RedisAlertCache) Set(ctx context.Context, report *alerts.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}

// LocalAlertCache keeps the report in process memory. Used when no Redis is configured.
type LocalAlertCache struct {
	mu        sync.RWMutex
	report    *alerts.Report
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewLocalAlertCache creates an in-process alert cache.
func NewLocalAlertCache(ttl time.Duration) *LocalAlertCache {
	return &LocalAlertCache{ttl: ttl, now: time.Now}
}

func (c *LocalAlertCache) Get(_ context.Context) (*alerts.Report, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.report == nil || !c.now().Before(c.expiresAt) {
		return nil, false, nil
	}
	return cloneReport(c.report), true, nil
}

func (c *LocalAlertCache) Set(_ context.Context, report *alerts.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report = cloneReport(report)
	c.expiresAt = c.now().Add(c.ttl)
	return nil
}

func cloneReport(r *alerts.Report) *alerts.Report {
	out := *r
	out.OutOfStock = slices.Clone(r.OutOfStock)
	out.CriticalStock = slices.Clone(r.CriticalStock)
	out.LowStock = slices.Clone(r.LowStock)
	return &out
}
