package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the assemblr worker.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, encryption keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// HealthAddr is where the worker serves /healthz and /metrics.
	HealthAddr string `yaml:"health_addr" env:"HEALTH_ADDR" env-default:"127.0.0.1:9090"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Worker configuration (job concurrency and pacing)
	Worker WorkerConfig `yaml:"worker"`

	// Composio vendor-action gateway configuration
	Composio ComposioConfig `yaml:"composio"`

	// Credential encryption key for integration secrets.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"postgres"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"assemblr"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PG_MAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

// URL builds a PostgreSQL connection URL from the config.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// WorkerConfig bounds how much parallel work the job runner performs.
// Concurrency caps simultaneous job executions; RatePerSecond caps job
// starts across all workers to protect shared downstream resources.
type WorkerConfig struct {
	Concurrency   int     `yaml:"concurrency" env:"WORKER_CONCURRENCY" env-default:"5"`
	RatePerSecond float64 `yaml:"rate_per_second" env:"WORKER_RATE_PER_SECOND" env-default:"10"`
	// NightlyDetection schedules the daily per-org detection sweep.
	NightlyDetection bool `yaml:"nightly_detection" env:"WORKER_NIGHTLY_DETECTION" env-default:"true"`
}

// ComposioConfig holds the Composio API gateway configuration.
// Adapters execute all vendor actions through Composio.
type ComposioConfig struct {
	BaseURL string `yaml:"base_url" env:"COMPOSIO_BASE_URL" env-default:"https://backend.composio.dev/api/v1"`
	APIKey  string `yaml:"-" env:"COMPOSIO_API_KEY"` // Secret - not in YAML
}

// Load reads configuration from config.yaml (if present) and environment
// variables, with environment variables taking precedence.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and sane.
func (c *Config) Validate() error {
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.RatePerSecond <= 0 {
		return fmt.Errorf("worker rate_per_second must be positive, got %v", c.Worker.RatePerSecond)
	}
	if c.Env != "local" && c.CredentialsKey == "" {
		return fmt.Errorf("CREDENTIALS_KEY is required outside local environment")
	}
	return nil
}
