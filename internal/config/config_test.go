package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		setEnv(t, key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "PORT", "ENV", "LOG_LEVEL", "DATABASE_URL",
		"HIGH_VALUE_THRESHOLD", "WORKFLOW_COOLDOWN", "ABANDON_AFTER",
		"RATE_LIMIT_RPS", "ADMIN_SECRET")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.HighValueThreshold.Equal(decimal.NewFromInt(10_000)))
	assert.Equal(t, DefaultWorkflowCooldown, cfg.WorkflowCooldown)
	assert.Equal(t, DefaultAbandonAfter, cfg.AbandonAfter)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ENV", "production")
	setEnv(t, "HIGH_VALUE_THRESHOLD", "25000.50")
	setEnv(t, "WORKFLOW_COOLDOWN", "1m")
	setEnv(t, "ABANDON_AFTER", "2h")
	setEnv(t, "RATE_LIMIT_RPS", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.HighValueThreshold.Equal(decimal.RequireFromString("25000.50")))
	assert.Equal(t, time.Minute, cfg.WorkflowCooldown)
	assert.Equal(t, 2*time.Hour, cfg.AbandonAfter)
	assert.Equal(t, 250, cfg.RateLimitRPS)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	setEnv(t, "HIGH_VALUE_THRESHOLD", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "HIGH_VALUE_THRESHOLD")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			HighValueThreshold: decimal.NewFromInt(10_000),
			WorkflowCooldown:   30 * time.Second,
			AbandonAfter:       15 * time.Minute,
			RateLimitRPS:       100,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"negative threshold", func(c *Config) { c.HighValueThreshold = decimal.NewFromInt(-1) }, "HIGH_VALUE_THRESHOLD"},
		{"negative cooldown", func(c *Config) { c.WorkflowCooldown = -time.Second }, "WORKFLOW_COOLDOWN"},
		{"negative abandon", func(c *Config) { c.AbandonAfter = -time.Minute }, "ABANDON_AFTER"},
		{"zero rate limit", func(c *Config) { c.RateLimitRPS = 0 }, "RATE_LIMIT_RPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
