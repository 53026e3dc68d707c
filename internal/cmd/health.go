package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify configuration loads, the store opens and migrates, and the database answers a ping.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.CLILogger
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		if versionInfo.Version == "" {
			logger.Warn("Version information missing")
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			logger.Error("❌ Configuration invalid", zap.Error(err))
			return err
		}
		logger.Info("✅ Configuration loaded", zap.Int("batch_concurrency", cfg.Batch.Concurrency))

		st, err := openStore(ctx)
		if err != nil {
			logger.Error("❌ Store unavailable", zap.Error(err))
			return err
		}
		defer st.Close() // nolint:errcheck // best-effort close at exit
		logger.Info("✅ Store opened and migrated", zap.String("driver", st.Driver()))

		if err := st.DB.PingContext(ctx); err != nil {
			logger.Error("❌ Store ping failed", zap.Error(err))
			return err
		}
		logger.Info("✅ All health checks passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
