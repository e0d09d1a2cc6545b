// Package models - Service configuration and operational settings.
// This file defines the configuration tree for every admission-control component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, redis, blocking, ...)
// - Defaults that run a single process with no external dependencies
// - Validation catches misconfigurations before the listener starts
// - Absence of a shared counter store is a supported mode, not an error
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP listener settings
// - Redis: shared counter backend (optional)
// - Counter: in-process fallback backend tuning
// - RateLimit: default fixed-window budgets per operation class
// - Blocking: auth-failure escalation policy
// - Suspension: suspension cache tuning
// - Storage: durable store for suspension records
// - Auth: session token validation
// - ClientIP: proxy header trust
// - Logging, Metrics, Observability: ambient concerns
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	Counter       CounterConfig       `yaml:"counter" json:"counter"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Blocking      BlockingConfig      `yaml:"blocking" json:"blocking"`
	Suspension    SuspensionConfig    `yaml:"suspension" json:"suspension"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Auth          AuthConfig          `yaml:"auth" json:"auth"`
	ClientIP      ClientIPConfig      `yaml:"client_ip" json:"client_ip"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// RedisConfig holds the shared counter backend connection. An empty URL selects
// the in-process fallback.
type RedisConfig struct {
	URL              string        `yaml:"url" json:"url"`
	Token            string        `yaml:"token" json:"-"`
	OperationTimeout time.Duration `yaml:"operation_timeout" json:"operation_timeout"`
	KeyPrefix        string        `yaml:"key_prefix" json:"key_prefix"`
}

// Configured reports whether the shared backend should be used.
func (rc RedisConfig) Configured() bool {
	return rc.URL != ""
}

type CounterConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	ReadRequests   int           `yaml:"read_requests" json:"read_requests"`
	MutateRequests int           `yaml:"mutate_requests" json:"mutate_requests"`
	Window         time.Duration `yaml:"window" json:"window"`
}

// BlockingConfig is the auth-failure escalation policy.
type BlockingConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	FailureWindow    time.Duration `yaml:"failure_window" json:"failure_window"`
	BaseDuration     time.Duration `yaml:"base_duration" json:"base_duration"`
	MaxDuration      time.Duration `yaml:"max_duration" json:"max_duration"`
	LevelTTL         time.Duration `yaml:"level_ttl" json:"level_ttl"`
	ReporterQueue    int           `yaml:"reporter_queue" json:"reporter_queue"`
	ReporterRate     float64       `yaml:"reporter_rate" json:"reporter_rate"`
}

type SuspensionConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" json:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

// AuthConfig selects how session tokens are verified: a JWKS endpoint
// (asymmetric keys) or a shared HMAC secret.
type AuthConfig struct {
	JWKSURL    string `yaml:"jwks_url" json:"jwks_url"`
	JWTSecret  string `yaml:"jwt_secret" json:"-"`
	Issuer     string `yaml:"issuer" json:"issuer"`
	Audience   string `yaml:"audience" json:"audience"`
	CookieName string `yaml:"cookie_name" json:"cookie_name"`
	AdminRole  string `yaml:"admin_role" json:"admin_role"`
}

type ClientIPConfig struct {
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration that runs a single process with
// in-memory counters and in-memory suspension storage.
//
// Default Values Rationale:
// - Read 60/min, Mutate 20/min: generous for interactive dashboards
// - 10 auth failures in 15 minutes promote to a block starting at 15 minutes
// - Suspension cache bounded at 60 seconds of staleness
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			OperationTimeout: 500 * time.Millisecond,
			KeyPrefix:        "gk:",
		},
		Counter: CounterConfig{
			CleanupInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			ReadRequests:   60,
			MutateRequests: 20,
			Window:         time.Minute,
		},
		Blocking: BlockingConfig{
			FailureThreshold: 10,
			FailureWindow:    15 * time.Minute,
			BaseDuration:     15 * time.Minute,
			MaxDuration:      24 * time.Hour,
			LevelTTL:         7 * 24 * time.Hour,
			ReporterQueue:    1024,
			ReporterRate:     100,
		},
		Suspension: SuspensionConfig{
			CacheTTL: 60 * time.Second,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns: 10,
			},
		},
		Auth: AuthConfig{
			AdminRole: "admin",
		},
		ClientIP: ClientIPConfig{
			TrustProxyHeaders: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "gatekeeper",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis config: %w", err)
	}

	if c.Counter.CleanupInterval <= 0 {
		return errors.New("invalid counter config: cleanup interval must be positive")
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Blocking.Validate(); err != nil {
		return fmt.Errorf("invalid blocking config: %w", err)
	}

	if c.Suspension.CacheTTL <= 0 {
		return errors.New("invalid suspension config: cache ttl must be positive")
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	return nil
}

func (rc *RedisConfig) Validate() error {
	if rc.OperationTimeout <= 0 {
		return errors.New("operation timeout must be positive")
	}
	if rc.Token != "" && rc.URL == "" {
		return errors.New("token is set but url is empty")
	}
	return nil
}

func (rl *RateLimitConfig) Validate() error {
	if !rl.Enabled {
		return nil
	}
	if rl.ReadRequests <= 0 {
		return errors.New("read requests must be positive")
	}
	if rl.MutateRequests <= 0 {
		return errors.New("mutate requests must be positive")
	}
	if rl.Window < time.Millisecond {
		return errors.New("window must be at least 1ms")
	}
	return nil
}

func (bc *BlockingConfig) Validate() error {
	if bc.FailureThreshold <= 0 {
		return errors.New("failure threshold must be positive")
	}
	if bc.FailureWindow <= 0 {
		return errors.New("failure window must be positive")
	}
	if bc.BaseDuration <= 0 {
		return errors.New("base duration must be positive")
	}
	if bc.MaxDuration < bc.BaseDuration {
		return errors.New("max duration cannot be shorter than base duration")
	}
	if bc.LevelTTL <= 0 {
		return errors.New("level ttl must be positive")
	}
	if bc.ReporterQueue <= 0 {
		return errors.New("reporter queue must be positive")
	}
	if bc.ReporterRate <= 0 {
		return errors.New("reporter rate must be positive")
	}
	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
}

func (ac *AuthConfig) Validate() error {
	if ac.JWKSURL == "" && ac.JWTSecret == "" {
		return errors.New("either jwks_url or jwt_secret is required")
	}
	if ac.JWKSURL != "" && ac.JWTSecret != "" {
		return errors.New("jwks_url and jwt_secret are mutually exclusive")
	}
	if ac.AdminRole == "" {
		return errors.New("admin role cannot be empty")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validOutputs, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
