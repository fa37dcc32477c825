package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the workmate service.
// Environment variables are parsed from the WORKMATE_ prefix,
// e.g. WORKMATE_HTTP_PORT, WORKMATE_DB_DRIVER.
type Config struct {
	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Storage
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/workmate.db"`

	// Intent resolver
	GeminiAPIKeys       []string      `envconfig:"GEMINI_API_KEYS" default:""`
	GeminiModels        []string      `envconfig:"GEMINI_MODELS" default:"gemini-2.5-flash,gemini-2.5-flash-lite,gemini-2.0-flash"`
	GeminiEmbedModel    string        `envconfig:"GEMINI_EMBED_MODEL" default:"text-embedding-004"`
	ResolverTimeout     time.Duration `envconfig:"RESOLVER_TIMEOUT" default:"15s"`
	ConfidenceThreshold float64       `envconfig:"CONFIDENCE_THRESHOLD" default:"0.8"`

	// Confirmation engine
	PendingTTL    time.Duration `envconfig:"PENDING_TTL" default:"10m"`
	HistoryWindow int           `envconfig:"HISTORY_WINDOW" default:"6"`
	DevAPIKey     string        `envconfig:"DEV_API_KEY" default:""`
}

// Validate checks driver selection and required settings.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("WORKMATE_POSTGRES_DSN is required for the postgres driver")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("WORKMATE_SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0,1]")
	}
	if c.PendingTTL <= 0 {
		return fmt.Errorf("PENDING_TTL must be positive")
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be positive")
	}
	return nil
}

// New creates a Config by parsing WORKMATE_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("WORKMATE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("port", cfg.HTTPPort).
		Int("gemini_keys", len(cfg.GeminiAPIKeys)).
		Strs("gemini_models", cfg.GeminiModels).
		Float64("confidence_threshold", cfg.ConfidenceThreshold).
		Dur("pending_ttl", cfg.PendingTTL).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config with defaults suitable for unit tests.
func NewForTesting() *Config {
	return &Config{
		HTTPPort:            8080,
		DBDriver:            "sqlite",
		SQLitePath:          ":memory:",
		GeminiModels:        []string{"gemini-2.5-flash"},
		ResolverTimeout:     5 * time.Second,
		ConfidenceThreshold: 0.8,
		PendingTTL:          10 * time.Minute,
		HistoryWindow:       6,
	}
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
