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

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"staffhub/internal/models"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STAFFHUB_"

// DefaultEnvFile is read, when present, before environment overrides apply.
const DefaultEnvFile = ".env"

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	envFile string
}

// WithEnvFile reads dotenv variables from path instead of DefaultEnvFile. An
// empty path skips dotenv loading.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// Load loads configuration from defaults, an optional dotenv file, the YAML
// file at configPath and STAFFHUB_* environment variables, in that order.
// Variables already set in the process environment win over the dotenv file.
func Load(configPath string, opts ...Option) (*models.Config, error) {
	lo := loadOptions{envFile: DefaultEnvFile}
	for _, opt := range opts {
		opt(&lo)
	}

	config := models.NewDefaultConfig()

	if err := loadEnvFile(lo.envFile); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Debug("Loaded env file", "path", path)
	return nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", filePath)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func setString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func setInt(dst *int, name string) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring malformed environment variable", "name", EnvPrefix+name, "error", err)
		return
	}
	*dst = n
}

func setFloat(dst *float64, name string) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring malformed environment variable", "name", EnvPrefix+name, "error", err)
		return
	}
	*dst = f
}

func setDuration(dst *time.Duration, name string) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Ignoring malformed environment variable", "name", EnvPrefix+name, "error", err)
		return
	}
	*dst = d
}

func setBool(dst *bool, name string) {
	if v, ok := lookup(name); ok {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setList(dst *[]string, name string) {
	v, ok := lookup(name)
	if !ok {
		return
	}
	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	*dst = list
}

// loadFromEnvironment applies STAFFHUB_* overrides. Malformed numbers and
// durations are logged and skipped.
func loadFromEnvironment(config *models.Config) {
	// Server
	setInt(&config.Server.Port, "PORT")
	setString(&config.Server.Host, "HOST")
	setDuration(&config.Server.ReadTimeout, "READ_TIMEOUT")
	setDuration(&config.Server.WriteTimeout, "WRITE_TIMEOUT")
	setDuration(&config.Server.IdleTimeout, "IDLE_TIMEOUT")
	setBool(&config.Server.TLSEnabled, "TLS_ENABLED")
	setString(&config.Server.TLSCertFile, "TLS_CERT_FILE")
	setString(&config.Server.TLSKeyFile, "TLS_KEY_FILE")
	setBool(&config.Server.CORS.Enabled, "CORS_ENABLED")
	setList(&config.Server.CORS.AllowedOrigins, "CORS_ALLOWED_ORIGINS")

	// Storage
	setString(&config.Storage.Type, "STORAGE_TYPE")
	setString(&config.Storage.Path, "STORAGE_PATH")
	setString(&config.Storage.Database.DSN, "DATABASE_DSN")
	setInt(&config.Storage.Database.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS")
	setInt(&config.Storage.Database.MaxIdleConns, "DATABASE_MAX_IDLE_CONNS")

	// Security
	setBool(&config.Security.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&config.Security.RateLimit.MaxRequests, "RATE_LIMIT_MAX_REQUESTS")
	setDuration(&config.Security.RateLimit.Window, "RATE_LIMIT_WINDOW")
	setString(&config.Security.RateLimit.Backend, "RATE_LIMIT_BACKEND")
	setInt(&config.Security.Login.MaxAttempts, "LOGIN_MAX_ATTEMPTS")
	setDuration(&config.Security.Login.LockoutWindow, "LOGIN_LOCKOUT_WINDOW")
	setInt(&config.Security.Content.MaxBytes, "CONTENT_MAX_BYTES")
	setString(&config.Security.JWT.Secret, "JWT_SECRET")
	setString(&config.Security.JWT.Issuer, "JWT_ISSUER")
	setDuration(&config.Security.JWT.TTL, "JWT_TTL")
	setString(&config.Security.MinClientVersion, "MIN_CLIENT_VERSION")
	setList(&config.Security.BootstrapAdmins, "BOOTSTRAP_ADMINS")

	// Engagement and notifications
	setInt(&config.Engagement.MaxRetries, "ENGAGEMENT_MAX_RETRIES")
	setDuration(&config.Engagement.RetryBackoff, "ENGAGEMENT_RETRY_BACKOFF")
	setInt(&config.Notifications.BatchSize, "NOTIFICATIONS_BATCH_SIZE")
	setInt(&config.Notifications.Workers, "NOTIFICATIONS_WORKERS")
	setFloat(&config.Notifications.BatchesPerSecond, "NOTIFICATIONS_BATCHES_PER_SECOND")
	setDuration(&config.Notifications.Timeout, "NOTIFICATIONS_TIMEOUT")

	// Logging
	setString(&config.Logging.Level, "LOG_LEVEL")
	setString(&config.Logging.Format, "LOG_FORMAT")
	setString(&config.Logging.Output, "LOG_OUTPUT")
	setString(&config.Logging.FilePath, "LOG_FILE_PATH")

	// Redis
	setString(&config.Cache.Redis.Addr, "REDIS_ADDR")
	setString(&config.Cache.Redis.Password, "REDIS_PASSWORD")
	setInt(&config.Cache.Redis.DB, "REDIS_DB")
	setInt(&config.Cache.Redis.PoolSize, "REDIS_POOL_SIZE")

	// Metrics and tracing
	setBool(&config.Metrics.Enabled, "METRICS_ENABLED")
	setString(&config.Metrics.Path, "METRICS_PATH")
	setInt(&config.Metrics.Port, "METRICS_PORT")
	setString(&config.Observability.ServiceName, "SERVICE_NAME")
	setBool(&config.Observability.Tracing.Enabled, "TRACING_ENABLED")
	setString(&config.Observability.Tracing.Exporter, "TRACING_EXPORTER")
	setString(&config.Observability.Tracing.OTLPEndpoint, "TRACING_OTLP_ENDPOINT")
	setFloat(&config.Observability.Tracing.SampleRate, "TRACING_SAMPLE_RATE")
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "file:./data/staffhub.db"
	config.Security.MinClientVersion = "1.0.0"
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// security.jwt.secret is left empty; production sets STAFFHUB_JWT_SECRET.
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
