package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Valkey   ValkeyConfig
	Queue    QueueConfig
	Gateway  GatewayConfig
}

type AppConfig struct {
	Version     string
	Port        string
	Debug       bool
	Environment string
	BasicAuth   []string
	ServerID    string
}

type DatabaseConfig struct {
	Driver   string // memory, sqlite or postgres
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB name for Postgres
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// QueueConfig tunes the dispatch loop.
type QueueConfig struct {
	Enabled        bool
	PollInterval   time.Duration
	BatchSize      int
	StaleLease     time.Duration
	Workers        int
	DefaultTargets []string
	DryRun         bool
}

type GatewayConfig struct {
	URL   string
	Token string
}

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	debug := getEnvBool("APP_DEBUG", false)

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	var defaultTargets []string
	if v := getEnv("QUEUE_DEFAULT_TARGETS", ""); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				defaultTargets = append(defaultTargets, t)
			}
		}
	}

	cfg := &Config{
		App: AppConfig{
			Version:     "v1.2.0",
			Port:        getEnv("APP_PORT", "3000"),
			Debug:       debug,
			Environment: getEnv("APP_ENV", "development"),
			BasicAuth:   basicAuth,
			ServerID:    getEnv("SERVER_ID", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Name:     getEnv("DB_NAME", filepath.Join("storages", "queue.db")),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
		},
		Valkey: ValkeyConfig{
			Enabled:   getEnvBool("VALKEY_ENABLED", false),
			Address:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			DB:        getEnvInt("VALKEY_DB", 0),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "groupqueue:"),
		},
		Queue: QueueConfig{
			Enabled:        getEnvBool("QUEUE_ENABLED", true),
			PollInterval:   time.Duration(getEnvInt("QUEUE_POLL_INTERVAL_MS", 900000)) * time.Millisecond,
			BatchSize:      getEnvInt("QUEUE_BATCH_SIZE", 10),
			StaleLease:     time.Duration(getEnvInt("QUEUE_STALE_LEASE_MS", 600000)) * time.Millisecond,
			Workers:        getEnvInt("QUEUE_WORKERS", 4),
			DefaultTargets: defaultTargets,
			DryRun:         getEnvBool("QUEUE_DRY_RUN", false),
		},
		Gateway: GatewayConfig{
			URL:   getEnv("GATEWAY_URL", ""),
			Token: getEnv("GATEWAY_TOKEN", ""),
		},
	}

	return cfg, nil
}
