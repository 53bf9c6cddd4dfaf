// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)

	// Verification policy
	HighValueThreshold decimal.Decimal // pre-confirmation gate
	WorkflowCooldown   time.Duration   // review cool-down before an instance can be reused
	AbandonAfter       time.Duration   // stale workflows are cancelled after this (0 disables)

	// Security
	RateLimitRPS int
	AdminSecret  string // admin API secret for incident review
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultHighValueThreshold = "10000"
	DefaultWorkflowCooldown   = 30 * time.Second
	DefaultAbandonAfter       = 15 * time.Minute
	DefaultRateLimit          = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	threshold, err := decimal.NewFromString(getEnv("HIGH_VALUE_THRESHOLD", DefaultHighValueThreshold))
	if err != nil {
		return nil, fmt.Errorf("HIGH_VALUE_THRESHOLD must be a decimal number: %w", err)
	}

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HighValueThreshold: threshold,
		WorkflowCooldown:   getEnvDuration("WORKFLOW_COOLDOWN", DefaultWorkflowCooldown),
		AbandonAfter:       getEnvDuration("ABANDON_AFTER", DefaultAbandonAfter),
		RateLimitRPS:       int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.HighValueThreshold.IsNegative() {
		return fmt.Errorf("HIGH_VALUE_THRESHOLD must not be negative")
	}

	if c.WorkflowCooldown < 0 {
		return fmt.Errorf("WORKFLOW_COOLDOWN must not be negative")
	}

	if c.AbandonAfter < 0 {
		return fmt.Errorf("ABANDON_AFTER must not be negative")
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
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
