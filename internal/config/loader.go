// Package config provides centralized configuration management for disputekit.
// Layers, lowest precedence first:
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: user config file (explicit path or XDG discovery)
// Layer 3: environment variables and runtime overrides
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/disputekit/disputekit/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Batch defaults
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.max_retries", 2)
	v.SetDefault("batch.retry_backoff", "500ms")
	v.SetDefault("batch.max_backoff", "5s")
	v.SetDefault("batch.submit_rate", 0.0)
	v.SetDefault("batch.default_due_days", 30)

	// Company defaults
	v.SetDefault("company.name", "")
	v.SetDefault("company.address", "")
	v.SetDefault("company.phone", "")
	v.SetDefault("company.email", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
}

// Load loads configuration from defaults, the discovered user config file,
// the environment and runtimeOverrides.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", runtimeOverrides...)
}

// LoadFile is Load with an explicit config file. An empty path falls back to
// XDG discovery; a missing explicit file is an error.
func LoadFile(ctx context.Context, path string, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	SetDefaults(v)

	path = strings.TrimSpace(path)
	if path == "" {
		path = discoverConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// Load environment variable overrides
	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if value := strings.TrimSpace(os.Getenv(appid.EnvPrefix + "SUBMIT_RATE")); value != "" {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid submit rate: %w", err)
		}
		setPath(envOverrides, []string{"batch", "submit_rate"}, rate)
	}

	// Combine environment overrides with runtime overrides
	allOverrides := []map[string]any{envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge config overrides: %w", err)
		}
	}

	// Unmarshal into typed config struct
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// Validate rejects settings the batch engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Batch.Concurrency < 1:
		return fmt.Errorf("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	case c.Batch.MaxRetries < 0:
		return fmt.Errorf("batch.max_retries must not be negative, got %d", c.Batch.MaxRetries)
	case c.Batch.SubmitRate < 0:
		return fmt.Errorf("batch.submit_rate must not be negative, got %g", c.Batch.SubmitRate)
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// discoverConfigFile returns the first existing user config file, if any.
func discoverConfigFile() string {
	for _, candidate := range gfconfig.GetAppConfigPaths(appid.ConfigName) {
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.IsDir() {
			candidate = filepath.Join(candidate, "config.yaml")
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
		}
		return candidate
	}
	return ""
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := appid.EnvPrefix

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Batch config
		{Name: prefix + "BATCH_CONCURRENCY", Path: []string{"batch", "concurrency"}, Type: EnvInt},
		{Name: prefix + "BATCH_MAX_RETRIES", Path: []string{"batch", "max_retries"}, Type: EnvInt},
		{Name: prefix + "BATCH_RETRY_BACKOFF", Path: []string{"batch", "retry_backoff"}, Type: EnvString},
		{Name: prefix + "BATCH_MAX_BACKOFF", Path: []string{"batch", "max_backoff"}, Type: EnvString},
		{Name: prefix + "BATCH_DEFAULT_DUE_DAYS", Path: []string{"batch", "default_due_days"}, Type: EnvInt},

		// Company config
		{Name: prefix + "COMPANY_NAME", Path: []string{"company", "name"}, Type: EnvString},
		{Name: prefix + "COMPANY_ADDRESS", Path: []string{"company", "address"}, Type: EnvString},
		{Name: prefix + "COMPANY_PHONE", Path: []string{"company", "phone"}, Type: EnvString},
		{Name: prefix + "COMPANY_EMAIL", Path: []string{"company", "email"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(appid.ConfigName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(appid.ConfigName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + appid.BinaryName + ".db"
	}
	return filepath.Join(dataDir, appid.BinaryName+".db")
}

func setPath(target map[string]any, path []string, value any) {
	current := target
	for i, key := range path {
		if i == len(path)-1 {
			current[key] = value
			return
		}
		next, ok := current[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[key] = next
		}
		current = next
	}
}
