package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gatekeeper/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "GATEKEEPER_"

// DefaultEnvFile is read when present. Values already in the process
// environment win over values in the file.
const DefaultEnvFile = ".env"

// Load builds the configuration from defaults, the optional YAML file, the
// optional .env file and GATEKEEPER_* environment variables, in that order,
// then validates the result.
func Load(configPath string) (*models.Config, error) {
	return LoadWithEnvFile(configPath, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit dotenv path. An empty path skips
// the dotenv step.
func LoadWithEnvFile(configPath, envFile string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadFromFile(config *models.Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadDotEnv populates the process environment from a dotenv file without
// overriding variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return err
	}
	slog.Debug("Loaded environment file", "path", path)
	return nil
}

func loadFromEnvironment(config *models.Config) {
	// Server
	envString("HOST", &config.Server.Host)
	envInt("PORT", &config.Server.Port)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)

	// Shared counter backend
	envString("REDIS_URL", &config.Redis.URL)
	envString("REDIS_TOKEN", &config.Redis.Token)
	envDuration("REDIS_OPERATION_TIMEOUT", &config.Redis.OperationTimeout)
	envString("REDIS_KEY_PREFIX", &config.Redis.KeyPrefix)
	envDuration("COUNTER_CLEANUP_INTERVAL", &config.Counter.CleanupInterval)

	// Rate limiting
	envBool("RATE_LIMIT_ENABLED", &config.RateLimit.Enabled)
	envInt("RATE_LIMIT_READ_REQUESTS", &config.RateLimit.ReadRequests)
	envInt("RATE_LIMIT_MUTATE_REQUESTS", &config.RateLimit.MutateRequests)
	envDuration("RATE_LIMIT_WINDOW", &config.RateLimit.Window)

	// Blocking
	envInt("BLOCK_FAILURE_THRESHOLD", &config.Blocking.FailureThreshold)
	envDuration("BLOCK_FAILURE_WINDOW", &config.Blocking.FailureWindow)
	envDuration("BLOCK_BASE_DURATION", &config.Blocking.BaseDuration)
	envDuration("BLOCK_MAX_DURATION", &config.Blocking.MaxDuration)
	envDuration("BLOCK_LEVEL_TTL", &config.Blocking.LevelTTL)
	envInt("BLOCK_REPORTER_QUEUE", &config.Blocking.ReporterQueue)
	envFloat("BLOCK_REPORTER_RATE", &config.Blocking.ReporterRate)

	envDuration("SUSPENSION_CACHE_TTL", &config.Suspension.CacheTTL)

	// Storage
	envString("STORAGE_TYPE", &config.Storage.Type)
	envString("DATABASE_DSN", &config.Storage.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)

	// Auth
	envString("AUTH_JWKS_URL", &config.Auth.JWKSURL)
	envString("AUTH_JWT_SECRET", &config.Auth.JWTSecret)
	envString("AUTH_ISSUER", &config.Auth.Issuer)
	envString("AUTH_AUDIENCE", &config.Auth.Audience)
	envString("AUTH_COOKIE_NAME", &config.Auth.CookieName)
	envString("AUTH_ADMIN_ROLE", &config.Auth.AdminRole)

	envBool("TRUST_PROXY_HEADERS", &config.ClientIP.TrustProxyHeaders)

	// Logging
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics and tracing
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("TRACING_OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	envFloat("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

// Unparseable numeric values are ignored and the previous value is kept; the
// final Validate catches anything left out of range.
func envInt(key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			slog.Warn("Ignoring invalid integer in environment", "key", envPrefix+key, "value", v)
		}
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			slog.Warn("Ignoring invalid number in environment", "key", envPrefix+key, "value", v)
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else {
			slog.Warn("Ignoring invalid duration in environment", "key", envPrefix+key, "value", v)
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := lookup(key); ok {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

// SaveExample writes the default configuration as YAML, with placeholder
// credentials filled in, for operators to start from.
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Redis.URL = "redis://localhost:6379/0"
	config.Auth.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
	config.Auth.Issuer = "https://auth.example.com/"
	config.Auth.CookieName = "session"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
