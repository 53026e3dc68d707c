package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/appid"
	"github.com/disputekit/disputekit/internal/config"
	"github.com/disputekit/disputekit/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime and effective configuration. Secrets are never printed.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== " + appid.BinaryName + " environment ===")
		log.Info("Application:")
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("Runtime:")
		log.Info("  Go:         " + runtime.Version())
		log.Info(fmt.Sprintf("  Platform:   %s/%s (%d CPU)", runtime.GOOS, runtime.GOARCH, runtime.NumCPU()))

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Configuration:")
		log.Info("  Config File:    " + config.DefaultConfigPath())
		log.Info(fmt.Sprintf("  Server:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  Log Level:      " + cfg.Logging.Level + " (" + cfg.Logging.Profile + ")")
		log.Info("  Store Driver:   " + cfg.Store.Driver)
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  Store URL:      " + cfg.Store.URL)
			log.Info(fmt.Sprintf("  Auth Token:     %s", setOrUnset(cfg.Store.AuthToken)))
		} else {
			log.Info("  Store Path:     " + cfg.Store.Path)
		}
		log.Info(fmt.Sprintf("  Metrics:        enabled=%t port=%d", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("Batch:")
		log.Info(fmt.Sprintf("  Concurrency:    %d", cfg.Batch.Concurrency))
		log.Info(fmt.Sprintf("  Max Retries:    %d (backoff %s, max %s)", cfg.Batch.MaxRetries, cfg.Batch.RetryBackoff, cfg.Batch.MaxBackoff))
		log.Info(fmt.Sprintf("  Submit Rate:    %g/s", cfg.Batch.SubmitRate))
		log.Info(fmt.Sprintf("  Due Days:       %d", cfg.Batch.DefaultDueDays))
		if name := strings.TrimSpace(cfg.Company.Name); name != "" {
			log.Info("Company:        " + name)
		} else {
			log.Info("Company:        (not set)")
		}
	},
}

func setOrUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
