package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.False(t, cfg.Redis.Configured())
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.OperationTimeout)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.ReadRequests)
	assert.Equal(t, 20, cfg.RateLimit.MutateRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)

	assert.Equal(t, 10, cfg.Blocking.FailureThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Blocking.FailureWindow)
	assert.Equal(t, 15*time.Minute, cfg.Blocking.BaseDuration)
	assert.Equal(t, 24*time.Hour, cfg.Blocking.MaxDuration)
	assert.Equal(t, 168*time.Hour, cfg.Blocking.LevelTTL)

	assert.Equal(t, 60*time.Second, cfg.Suspension.CacheTTL)
	assert.Equal(t, StorageTypeMemory, cfg.Storage.Type)
	assert.Equal(t, "admin", cfg.Auth.AdminRole)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "gatekeeper", cfg.Observability.ServiceName)
	assert.False(t, cfg.Observability.Tracing.Enabled)
}

func TestConfig_DefaultsNeedOnlyAnAuthKey(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid auth config")

	require.NoError(t, validConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server config",
		},
		{
			name:    "redis token without url",
			mutate:  func(c *Config) { c.Redis.Token = "secret" },
			wantErr: "token is set but url is empty",
		},
		{
			name:    "redis url is optional",
			mutate:  func(c *Config) { c.Redis.URL = "redis://localhost:6379/0" },
			wantErr: "",
		},
		{
			name:    "zero read budget",
			mutate:  func(c *Config) { c.RateLimit.ReadRequests = 0 },
			wantErr: "read requests must be positive",
		},
		{
			name:    "sub-millisecond window",
			mutate:  func(c *Config) { c.RateLimit.Window = 500 * time.Microsecond },
			wantErr: "window must be at least 1ms",
		},
		{
			name: "disabled limiter skips budget checks",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.ReadRequests = 0
			},
			wantErr: "",
		},
		{
			name:    "max block shorter than base",
			mutate:  func(c *Config) { c.Blocking.MaxDuration = time.Minute },
			wantErr: "max duration cannot be shorter than base duration",
		},
		{
			name:    "zero failure threshold",
			mutate:  func(c *Config) { c.Blocking.FailureThreshold = 0 },
			wantErr: "failure threshold must be positive",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Storage.Type = StorageTypePostgres },
			wantErr: "database DSN is required",
		},
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.Storage.Type = "mongo" },
			wantErr: "invalid storage type: mongo",
		},
		{
			name:    "both jwks and secret",
			mutate:  func(c *Config) { c.Auth.JWKSURL = "https://auth.example.com/.well-known/jwks.json" },
			wantErr: "mutually exclusive",
		},
		{
			name:    "file logging without path",
			mutate:  func(c *Config) { c.Logging.Output = "file" },
			wantErr: "file path is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name: "metrics disabled skips port check",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.Port = 0
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
