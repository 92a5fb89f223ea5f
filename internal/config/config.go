// Package config provides configuration management for the stillness session
// service. It supports environment variable-based configuration with validation
// and default values for all service components including server, ingestion
// limits, security, persistence, alerting, and logging settings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// MinPortNumber is the minimum valid port number.
	MinPortNumber = 1
	// MaxPortNumber is the maximum valid port number.
	MaxPortNumber = 65535
)

// Config represents the complete configuration for the session service,
// aggregating all component-specific configurations.
type Config struct {
	// Environment holds environment-specific settings.
	Environment EnvironmentConfig `envconfig:"ENVIRONMENT"`
	// Server contains HTTP server configuration including ports, timeouts, and TLS settings.
	Server ServerConfig `envconfig:"SERVER"`
	// Limits contains ingestion validation and abuse thresholds.
	Limits LimitsConfig `envconfig:"LIMITS"`
	// Security contains security-related settings like CORS and trusted proxies.
	Security SecurityConfig `envconfig:"SECURITY"`
	// Storage contains snapshot persistence configuration.
	Storage StorageConfig `envconfig:"STORAGE"`
	// Alerts contains security alert delivery configuration.
	Alerts AlertsConfig `envconfig:"ALERTS"`
	// Logging contains logging configuration.
	Logging LoggingConfig `envconfig:"LOGGING"`
}

type Environment string

const (
	Local   Environment = "LOCAL"
	NonProd Environment = "NONPROD"
	Prod    Environment = "PROD"
)

// EnvironmentConfig holds environment-specific settings.
type EnvironmentConfig struct {
	// Environment indicates the current running environment (LOCAL, NONPROD, PROD).
	Environment Environment `envconfig:"ENV" default:"LOCAL"`
}

// ServerConfig holds HTTP server configuration including network settings,
// timeouts, and TLS certificate paths.
type ServerConfig struct {
	// Port is the HTTP server listening port.
	Port int `envconfig:"PORT"             default:"8080"`
	// Host is the network interface to bind to.
	Host string `envconfig:"HOST"             default:"0.0.0.0"`
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"     default:"15s"`
	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT"    default:"15s"`
	// IdleTimeout is the maximum amount of time to wait for keep-alive connections.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT"     default:"60s"`
	// ShutdownTimeout is the maximum time to wait for graceful server shutdown.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// TLSCert is the path to the TLS certificate file for HTTPS.
	TLSCert string `envconfig:"TLS_CERT"`
	// TLSKey is the path to the TLS private key file for HTTPS.
	TLSKey string `envconfig:"TLS_KEY"`
}

// LimitsConfig contains session validation bounds, rate limiting windows,
// and abuse escalation thresholds. Values here may be overlaid from YAML
// configuration files (see thresholds.go).
type LimitsConfig struct {
	// MinDuration is the shortest accepted session duration in seconds.
	MinDuration int `envconfig:"MIN_DURATION"            default:"1"`
	// MaxDuration is the longest accepted session duration in seconds (4 hours).
	MaxDuration int `envconfig:"MAX_DURATION"            default:"14400"`
	// TimestampSkew is how far a submitted timestamp may deviate from server time.
	TimestampSkew time.Duration `envconfig:"TIMESTAMP_SKEW"          default:"24h"`
	// RequestsPerMinute is the per-source sliding window admission limit.
	RequestsPerMinute int `envconfig:"REQUESTS_PER_MINUTE"     default:"10"`
	// RateWindow is the sliding window size for the per-minute limit.
	RateWindow time.Duration `envconfig:"RATE_WINDOW"             default:"1m"`
	// SessionsPerDay is the accepted-session cap per calendar date.
	SessionsPerDay int `envconfig:"SESSIONS_PER_DAY"        default:"100"`
	// DailyLimitPerSource scopes the daily cap per source when true,
	// or across all sources when false.
	DailyLimitPerSource bool `envconfig:"DAILY_LIMIT_PER_SOURCE"  default:"true"`
	// BlockDuration is how long an escalated source stays blocked.
	BlockDuration time.Duration `envconfig:"BLOCK_DURATION"          default:"30m"`
	// RapidFireAttempts is the attempt count in RateWindow that triggers a block.
	RapidFireAttempts int `envconfig:"RAPID_FIRE_ATTEMPTS"     default:"20"`
	// ViolationWindow is the lookback for violation-based escalation.
	ViolationWindow time.Duration `envconfig:"VIOLATION_WINDOW"        default:"1h"`
	// ViolationWarnCount is the hourly violation count that raises a warning alert.
	ViolationWarnCount int `envconfig:"VIOLATION_WARN_COUNT"    default:"5"`
	// ViolationBlockCount is the hourly violation count that blocks the source.
	ViolationBlockCount int `envconfig:"VIOLATION_BLOCK_COUNT"   default:"10"`
	// ScrapingAttempts is the hourly attempt count flagged as possible scraping.
	ScrapingAttempts int `envconfig:"SCRAPING_ATTEMPTS"       default:"50"`
	// ProbingKinds is the distinct invalid-input kind count flagged as probing.
	ProbingKinds int `envconfig:"PROBING_KINDS"           default:"3"`
	// EventRetention is how long security events stay queryable in memory.
	EventRetention time.Duration `envconfig:"EVENT_RETENTION"         default:"24h"`
}

// SecurityConfig contains security-related settings including
// CORS configuration and trusted proxies.
type SecurityConfig struct {
	// AllowedOrigins are the CORS allowed origins.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"   default:"*"`
	// AllowedMethods are the CORS allowed HTTP methods.
	AllowedMethods []string `envconfig:"ALLOWED_METHODS"   default:"GET,POST,OPTIONS"`
	// AllowedHeaders are the CORS allowed headers.
	AllowedHeaders []string `envconfig:"ALLOWED_HEADERS"   default:"Content-Type"`
	// ExposedHeaders are the CORS exposed headers.
	ExposedHeaders []string `envconfig:"EXPOSED_HEADERS"`
	// AllowCredentials determines if CORS allows credentials.
	AllowCredentials bool `envconfig:"ALLOW_CREDENTIALS" default:"false"`
	// MaxAge is the CORS preflight cache duration in seconds.
	MaxAge int `envconfig:"MAX_AGE"           default:"86400"`
	// TrustedProxies are the trusted proxy IP addresses.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// StorageConfig contains durable snapshot configuration.
type StorageConfig struct {
	// SnapshotPath is the file path for the session store snapshot.
	SnapshotPath string `envconfig:"SNAPSHOT_PATH"  default:"data/sessions.json"`
	// SaveInterval is the minimum interval between snapshot writes; appends
	// within the interval coalesce into a single write.
	SaveInterval time.Duration `envconfig:"SAVE_INTERVAL"  default:"5s"`
}

// AlertsConfig contains security alert delivery configuration.
// Alerts are delivered to an external notification service over HTTP.
type AlertsConfig struct {
	// Enabled determines whether alerts are delivered; when false they are only logged.
	Enabled bool `envconfig:"ENABLED"   default:"false"`
	// BaseURL is the notification service base URL.
	BaseURL string `envconfig:"BASE_URL"  default:"http://localhost:8000/api/v1/notification"`
	// Timeout is the HTTP delivery timeout.
	Timeout time.Duration `envconfig:"TIMEOUT"   default:"5s"`
	// Cooldown suppresses duplicate alerts for the same rule and source.
	Cooldown time.Duration `envconfig:"COOLDOWN"  default:"5m"`
}

// LoggingConfig contains logging configuration including
// log level, format, and output destination.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `envconfig:"LEVEL"  default:"info"`
	// Format is the log output format (json, text).
	Format string `envconfig:"FORMAT" default:"json"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `envconfig:"OUTPUT" default:"stdout"`
}

// Load reads configuration from environment variables, overlays YAML threshold
// files when present, and returns a validated Config instance. It returns an
// error if configuration is invalid.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.applyThresholdOverlay(); err != nil {
		return nil, fmt.Errorf("failed to apply threshold overlay: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs validation of all configuration values, ensuring they
// meet operational requirements.
func (c *Config) Validate() error {
	if c.Server.Port < MinPortNumber || c.Server.Port > MaxPortNumber {
		return errors.New("server port must be between 1 and 65535")
	}

	if c.Limits.MinDuration < 1 {
		return errors.New("minimum session duration must be at least 1 second")
	}

	if c.Limits.MaxDuration <= c.Limits.MinDuration {
		return errors.New("maximum session duration must exceed the minimum")
	}

	if c.Limits.RequestsPerMinute < 1 {
		return errors.New("requests per minute must be positive")
	}

	if c.Limits.SessionsPerDay < 1 {
		return errors.New("sessions per day must be positive")
	}

	if c.Limits.BlockDuration < time.Minute {
		return errors.New("block duration must be at least 1 minute")
	}

	if c.Limits.RapidFireAttempts <= c.Limits.RequestsPerMinute {
		return fmt.Errorf("rapid fire threshold (%d) must exceed the per-minute limit (%d)",
			c.Limits.RapidFireAttempts, c.Limits.RequestsPerMinute)
	}

	if c.Limits.ViolationBlockCount < c.Limits.ViolationWarnCount {
		return errors.New("violation block count must be at least the warn count")
	}

	if c.Storage.SnapshotPath == "" {
		return errors.New("snapshot path is required")
	}

	return nil
}

// ServerAddr returns the formatted server address string in host:port format.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsTLSEnabled returns true if both TLS certificate and key paths are configured.
func (c *Config) IsTLSEnabled() bool {
	return c.Server.TLSCert != "" && c.Server.TLSKey != ""
}
