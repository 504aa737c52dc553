package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "APP_PORT", "DEFAULT_LOCATION", "IDEMPOTENCY_TTL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_ADDR", "ALERTS_CACHE_TTL", "KAFKA_BROKERS", "OUTBOX_BATCH_SIZE", "DISPLAY_TIMEZONE",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "main", cfg.App.DefaultLocation)
	assert.Equal(t, 24*time.Hour, cfg.App.IdempotencyTTL)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 15*time.Second, cfg.Redis.AlertsTTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, time.UTC, cfg.Display.Location)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/stock")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("ALERTS_CACHE_TTL", "1m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("DISPLAY_TIMEZONE", "Europe/Berlin")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, time.Minute, cfg.Redis.AlertsTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "Europe/Berlin", cfg.Display.Location.String())
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "postgres without dsn",
			env:  map[string]string{"STORAGE_DRIVER": "postgres"},
			want: "DATABASE_URL",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"STORAGE_DRIVER": "sqlite"},
			want: "unknown STORAGE_DRIVER",
		},
		{
			name: "bad timezone",
			env:  map[string]string{"STORAGE_DRIVER": "memory", "DISPLAY_TIMEZONE": "Mars/Olympus"},
			want: "DISPLAY_TIMEZONE",
		},
		{
			name: "pool bounds",
			env:  map[string]string{"STORAGE_DRIVER": "memory", "DB_MIN_CONNS": "30"},
			want: "DB_MIN_CONNS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
