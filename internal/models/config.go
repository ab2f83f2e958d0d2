// Package models - Service configuration and operational settings.
// This file defines the configuration structures for all service components.
//
// Configuration layout:
// - Server: HTTP server and network settings
// - Storage: persistence backend selection
// - Security: rate limiting, login lockout, content ceilings, tokens
// - Engagement / Notifications: like toggles and broadcast fan-out tuning
// - Logging, Cache, Metrics, Observability: operational concerns
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeMySQL    = "mysql"
)

// Counter backend constants for rate limiting and login lockout state.
const (
	CounterBackendMemory = "memory"
	CounterBackendRedis  = "redis"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Engagement    EngagementConfig    `yaml:"engagement" json:"engagement"`
	Notifications NotificationConfig  `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Cache         CacheConfig         `yaml:"cache" json:"cache"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type     string            `yaml:"type" json:"type"`
	Path     string            `yaml:"path" json:"path"`
	Database DatabaseConfig    `yaml:"database" json:"database"`
	Options  map[string]string `yaml:"options" json:"options"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// SecurityConfig groups the request-defense layer settings.
type SecurityConfig struct {
	RateLimit        RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Login            LoginConfig     `yaml:"login" json:"login"`
	Content          ContentConfig   `yaml:"content" json:"content"`
	JWT              JWTConfig       `yaml:"jwt" json:"jwt"`
	MinClientVersion string          `yaml:"min_client_version" json:"min_client_version"`
	// BootstrapAdmins are emails granted admin rights when they register.
	// It is how the first admin of a fresh deployment comes to exist.
	BootstrapAdmins []string `yaml:"bootstrap_admins,omitempty" json:"bootstrap_admins,omitempty"`
}

// RateLimitConfig configures the per-address sliding window.
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
	Backend     string        `yaml:"backend" json:"backend"`
}

// LoginConfig configures failed-login lockout per identity.
type LoginConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	LockoutWindow time.Duration `yaml:"lockout_window" json:"lockout_window"`
}

// ContentConfig holds byte ceilings for free-text input. MaxBytes bounds the
// whole request body; the per-field ceilings are enforced by handlers.
type ContentConfig struct {
	MaxBytes        int `yaml:"max_bytes" json:"max_bytes"`
	TitleMaxBytes   int `yaml:"title_max_bytes" json:"title_max_bytes"`
	BodyMaxBytes    int `yaml:"body_max_bytes" json:"body_max_bytes"`
	CommentMaxBytes int `yaml:"comment_max_bytes" json:"comment_max_bytes"`
	BioMaxBytes     int `yaml:"bio_max_bytes" json:"bio_max_bytes"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret" json:"-"`
	Issuer string        `yaml:"issuer" json:"issuer"`
	TTL    time.Duration `yaml:"ttl" json:"ttl"`
}

type EngagementConfig struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

type NotificationConfig struct {
	BatchSize        int           `yaml:"batch_size" json:"batch_size"`
	Workers          int           `yaml:"workers" json:"workers"`
	BatchesPerSecond float64       `yaml:"batches_per_second" json:"batches_per_second"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
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

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Security defaults: 100 requests per 15 minutes per address, five failed
// logins per five minutes per identity, and a 10 MiB ceiling on free text.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Version"},
				MaxAge:         86400,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/staffhub.json",
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
			Options: make(map[string]string),
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:     true,
				MaxRequests: 100,
				Window:      900 * time.Second,
				Backend:     CounterBackendMemory,
			},
			Login: LoginConfig{
				MaxAttempts:   5,
				LockoutWindow: 300 * time.Second,
			},
			Content: ContentConfig{
				MaxBytes:        10 * 1024 * 1024,
				TitleMaxBytes:   1024,
				BodyMaxBytes:    64 * 1024,
				CommentMaxBytes: 16 * 1024,
				BioMaxBytes:     4 * 1024,
			},
			JWT: JWTConfig{
				Issuer: "staffhub",
				TTL:    24 * time.Hour,
			},
		},
		Engagement: EngagementConfig{
			MaxRetries:   3,
			RetryBackoff: 10 * time.Millisecond,
		},
		Notifications: NotificationConfig{
			BatchSize:        500,
			Workers:          4,
			BatchesPerSecond: 20,
			Timeout:          30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Cache: CacheConfig{
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "staffhub",
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

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Engagement.Validate(); err != nil {
		return fmt.Errorf("invalid engagement config: %w", err)
	}

	if err := c.Notifications.Validate(); err != nil {
		return fmt.Errorf("invalid notifications config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.Backend == CounterBackendRedis && c.Cache.Redis.Addr == "" {
		return errors.New("redis address is required when the rate limit backend is redis")
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
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

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite, StorageTypeMySQL:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.RateLimit.Enabled {
		if sec.RateLimit.MaxRequests <= 0 {
			return errors.New("rate limit max requests must be positive")
		}
		if sec.RateLimit.Window <= 0 {
			return errors.New("rate limit window must be positive")
		}
		if sec.RateLimit.Backend != CounterBackendMemory && sec.RateLimit.Backend != CounterBackendRedis {
			return fmt.Errorf("invalid rate limit backend: %s", sec.RateLimit.Backend)
		}
	}

	if sec.Login.MaxAttempts <= 0 {
		return errors.New("login max attempts must be positive")
	}
	if sec.Login.LockoutWindow <= 0 {
		return errors.New("login lockout window must be positive")
	}

	c := sec.Content
	if c.MaxBytes <= 0 {
		return errors.New("content max bytes must be positive")
	}
	for name, v := range map[string]int{
		"title":   c.TitleMaxBytes,
		"body":    c.BodyMaxBytes,
		"comment": c.CommentMaxBytes,
		"bio":     c.BioMaxBytes,
	} {
		if v <= 0 || v > c.MaxBytes {
			return fmt.Errorf("%s max bytes must be between 1 and %d", name, c.MaxBytes)
		}
	}

	if sec.JWT.TTL <= 0 {
		return errors.New("jwt ttl must be positive")
	}

	return nil
}

func (ec *EngagementConfig) Validate() error {
	if ec.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if ec.RetryBackoff < 0 {
		return errors.New("retry backoff cannot be negative")
	}
	return nil
}

func (nc *NotificationConfig) Validate() error {
	if nc.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	if nc.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if nc.BatchesPerSecond < 0 {
		return errors.New("batches per second cannot be negative")
	}
	if nc.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !containsString(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !containsString(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !containsString(validOutputs, lc.Output) {
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

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("otlp endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
