package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/appid"
	"github.com/disputekit/disputekit/internal/config"
	"github.com/disputekit/disputekit/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}

	loadedMu  sync.Mutex
	loadedCfg *config.Config
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   appid.BinaryName,
	Short: appid.Description,
	Long: fmt.Sprintf(`%s - %s

Import letter templates and client records, then run dispute batches from
a manifest or through the HTTP API started by "serve".`, appid.BinaryName, appid.Description),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early so CLI commands do not emit metrics to
	// stdout. Server mode initializes the Prometheus exporter later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", appid.ConfigName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig sets up the CLI logger and loads configuration.
func initConfig() {
	observability.InitCLILogger(verbose)

	cfg, err := config.LoadFile(context.Background(), cfgFile)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration", err)
		return
	}
	setLoadedConfig(cfg)
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("config_file", cfgFile),
		zap.String("store_driver", cfg.Store.Driver))
}

// loadConfig returns the configuration loaded at startup, loading it on
// demand when a command runs without cobra initialization (tests).
func loadConfig(ctx context.Context) (*config.Config, error) {
	loadedMu.Lock()
	defer loadedMu.Unlock()
	if loadedCfg != nil {
		return loadedCfg, nil
	}
	cfg, err := config.LoadFile(ctx, cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	loadedCfg = cfg
	return cfg, nil
}

func setLoadedConfig(cfg *config.Config) {
	loadedMu.Lock()
	defer loadedMu.Unlock()
	loadedCfg = cfg
}
