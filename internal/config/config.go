package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the user config file,
// then environment variables, then runtime overrides.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Company CompanyConfig `mapstructure:"company"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// BatchConfig controls how dispute batches are executed.
type BatchConfig struct {
	// Concurrency bounds in-flight client pipelines per batch.
	Concurrency int `mapstructure:"concurrency"`

	// MaxRetries is the number of retries after the first attempt for
	// transient submission failures.
	MaxRetries int `mapstructure:"max_retries"`

	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`

	// SubmitRate throttles dispute writes per second. Zero disables it.
	SubmitRate float64 `mapstructure:"submit_rate"`

	// DefaultDueDays sets the due date when a batch provides none.
	DefaultDueDays int `mapstructure:"default_due_days"`
}

// CompanyConfig is the sender identity printed on letters.
type CompanyConfig struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Phone   string `mapstructure:"phone"`
	Email   string `mapstructure:"email"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
