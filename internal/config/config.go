// Package config loads process configuration from the environment.
// A .env file in the working directory, when present, seeds variables that are not already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the full process configuration shared by cmd/server and cmd/worker.
type Config struct {
	App     AppConfig
	Log     LogConfig
	Storage StorageConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Outbox  OutboxConfig
	Tracing TracingConfig
	Display DisplayConfig
}

type AppConfig struct {
	Env  string
	Port string
	// DefaultLocation is used when a request names no location.
	DefaultLocation string
	// IdempotencyTTL is how long X-Idempotency-Key responses are replayed.
	IdempotencyTTL time.Duration
}

// IsDevelopment reports whether the console log encoder should be used.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	Driver      string
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	AlertsTTL time.Duration
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Retention is how long published messages are kept before purge.
	Retention time.Duration
}

type TracingConfig struct {
	Endpoint string
	Insecure bool
}

type DisplayConfig struct {
	Location *time.Location
}

// Load reads .env (if any) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:             getEnv("APP_ENV", "development"),
			Port:            getEnv("APP_PORT", "8080"),
			DefaultLocation: getEnv("DEFAULT_LOCATION", "main"),
			IdempotencyTTL:  getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        getEnvInt("REDIS_DB", 0),
			AlertsTTL: getEnvDuration("ALERTS_CACHE_TTL", 15*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "stock.events"),
		},
		Outbox: OutboxConfig{
			PollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),
			Retention:    getEnvDuration("OUTBOX_RETENTION", 7*24*time.Hour),
		},
		Tracing: TracingConfig{
			Endpoint: os.Getenv("OTEL_ENDPOINT"),
			Insecure: getEnvBool("OTEL_INSECURE", true),
		},
	}

	tz := getEnv("DISPLAY_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("DISPLAY_TIMEZONE %q: %w", tz, err)
	}
	cfg.Display.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Storage.MinConns > c.Storage.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Storage.MinConns, c.Storage.MaxConns)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.Outbox.BatchSize)
	}
	if c.App.DefaultLocation == "" {
		return errors.New("DEFAULT_LOCATION must not be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
