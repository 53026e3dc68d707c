package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateUserConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// Test basic config loading with defaults
	t.Run("LoadDefaults", func(t *testing.T) {
		isolateUserConfig(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("disputekit"), "disputekit.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)

		// Verify batch defaults
		assert.Equal(t, 5, cfg.Batch.Concurrency)
		assert.Equal(t, 2, cfg.Batch.MaxRetries)
		assert.Equal(t, 500*time.Millisecond, cfg.Batch.RetryBackoff)
		assert.Equal(t, 5*time.Second, cfg.Batch.MaxBackoff)
		assert.Equal(t, 0.0, cfg.Batch.SubmitRate)
		assert.Equal(t, 30, cfg.Batch.DefaultDueDays)

		// Verify logging defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "SIMPLE", cfg.Logging.Profile)

		// Verify metrics defaults
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)

		assert.True(t, cfg.Health.Enabled)
		assert.False(t, cfg.Debug.Enabled)
	})

	// Test runtime overrides
	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolateUserConfig(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"batch": map[string]any{
				"concurrency": 2,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 2, cfg.Batch.Concurrency)

		// Verify non-overridden values remain default
		assert.Equal(t, 2, cfg.Batch.MaxRetries)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	// Test environment variable overrides
	t.Run("EnvOverrides", func(t *testing.T) {
		isolateUserConfig(t)
		t.Setenv("DISPUTEKIT_PORT", "3000")
		t.Setenv("DISPUTEKIT_LOG_LEVEL", "warn")
		t.Setenv("DISPUTEKIT_METRICS_ENABLED", "false")
		t.Setenv("DISPUTEKIT_BATCH_CONCURRENCY", "8")
		t.Setenv("DISPUTEKIT_SUBMIT_RATE", "2.5")
		t.Setenv("DISPUTEKIT_COMPANY_NAME", "Acme Credit Repair")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 8, cfg.Batch.Concurrency)
		assert.Equal(t, 2.5, cfg.Batch.SubmitRate)
		assert.Equal(t, "Acme Credit Repair", cfg.Company.Name)
	})

	// Test config precedence: runtime > env > file > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolateUserConfig(t)
		t.Setenv("DISPUTEKIT_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("InvalidSubmitRate", func(t *testing.T) {
		isolateUserConfig(t)
		t.Setenv("DISPUTEKIT_SUBMIT_RATE", "fast")

		_, err := Load(ctx)
		require.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	isolateUserConfig(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 7070
batch:
  concurrency: 3
  retry_backoff: 2s
company:
  name: File Co
  phone: (555) 111-2222
store:
  path: ` + filepath.Join(t.TempDir(), "file.db") + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Run("FileValues", func(t *testing.T) {
		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, 3, cfg.Batch.Concurrency)
		assert.Equal(t, 2*time.Second, cfg.Batch.RetryBackoff)
		assert.Equal(t, "File Co", cfg.Company.Name)
		assert.Equal(t, "(555) 111-2222", cfg.Company.Phone)
		assert.Equal(t, "localhost", cfg.Server.Host)
	})

	t.Run("EnvBeatsFile", func(t *testing.T) {
		t.Setenv("DISPUTEKIT_BATCH_CONCURRENCY", "9")
		cfg, err := LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Batch.Concurrency)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadFile(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	isolateUserConfig(t)

	_, err := Load(ctx, map[string]any{"batch": map[string]any{"concurrency": 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency")

	_, err = Load(ctx, map[string]any{"batch": map[string]any{"max_retries": -1}})
	require.Error(t, err)
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()
	isolateUserConfig(t)

	cfg, err := Load(ctx)
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	assert.True(t, envVarNames["DISPUTEKIT_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["DISPUTEKIT_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["DISPUTEKIT_HOST"], "HOST env var must be mapped")
	assert.True(t, envVarNames["DISPUTEKIT_METRICS_PORT"], "METRICS_PORT env var must be mapped")
	assert.True(t, envVarNames["DISPUTEKIT_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["DISPUTEKIT_BATCH_CONCURRENCY"], "BATCH_CONCURRENCY env var must be mapped")
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()
	isolateUserConfig(t)
	t.Setenv("DISPUTEKIT_READ_TIMEOUT", "45s")
	t.Setenv("DISPUTEKIT_SHUTDOWN_TIMEOUT", "5m")
	t.Setenv("DISPUTEKIT_BATCH_RETRY_BACKOFF", "250ms")

	cfg, err := Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.RetryBackoff)
}
