package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/appid"
	"github.com/disputekit/disputekit/internal/config"
	errwrap "github.com/disputekit/disputekit/internal/errors"
	"github.com/disputekit/disputekit/internal/metrics"
	"github.com/disputekit/disputekit/internal/observability"
	"github.com/disputekit/disputekit/internal/server"
	"github.com/disputekit/disputekit/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

func telemetryHealthy(context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server with graceful shutdown support.

Batches started over the API run in this process and are recorded in the
configured store, so their results stay available after a restart.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload logging level from the config file`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (default from config)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
	}
	host, port := cfg.Server.Host, cfg.Server.Port
	if serverHost != "" {
		host = serverHost
	}
	if serverPort != 0 {
		port = serverPort
	}
	if err := checkListenPort(port); err != nil {
		return err
	}

	observability.InitServerLogger(cfg.Logging.Level, cfg.Logging.Profile)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}
	metrics.SetServerStartTime(time.Now().Unix())

	st, err := openStore(ctx)
	if err != nil {
		logger.Error("Failed to open store", zap.Error(err))
		return errwrap.WrapInternal(ctx, err, "store initialization failed")
	}

	manager, renderer, err := newManager(ctx, cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return errwrap.WrapInternal(ctx, err, "batch engine initialization failed")
	}

	logger.Info("Initializing server",
		zap.String("service", appid.BinaryName),
		zap.String("version", versionInfo.Version),
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("store_driver", st.Driver()),
		zap.Int("batch_concurrency", cfg.Batch.Concurrency),
		zap.Int("metrics_port", cfg.Metrics.Port))

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("store", handlers.CheckerFunc(st.DB.PingContext))
	if cfg.Metrics.Enabled {
		health.RegisterChecker("telemetry", handlers.CheckerFunc(telemetryHealthy))
	}

	srv := server.New(host, port, server.Options{
		Health:    health,
		Batches:   &handlers.BatchHandler{Batches: manager, History: st},
		Templates: &handlers.TemplateHandler{Templates: st, Clients: st, Renderer: renderer},
		Timeouts:  cfg.Server,
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: server first, then store, then logger.
	signals.OnShutdown(func(ctx context.Context) error {
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Closing store...")
		if err := st.Close(); err != nil {
			return errwrap.WrapInternal(ctx, err, "store close failed")
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		for _, snap := range manager.List() {
			if !snap.Status.Terminal() {
				logger.Info("Cancelling running batch", zap.String("batch_id", snap.BatchID))
				_ = manager.Cancel(snap.BatchID)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		for _, snap := range manager.List() {
			if _, err := manager.Wait(shutdownCtx, snap.BatchID); err != nil {
				logger.Warn("Batch did not finish before shutdown", zap.String("batch_id", snap.BatchID), zap.Error(err))
			}
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading configuration")
		reloaded, err := config.LoadFile(ctx, cfgFile)
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		setLoadedConfig(reloaded)
		observability.SetServerLevel(reloaded.Logging.Level)
		logger.Info("Configuration reloaded",
			zap.String("log_level", reloaded.Logging.Level),
			zap.String("note", "batch and store settings apply after restart"))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server...", zap.String("host", host), zap.Int("port", port))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

func checkListenPort(port int) error {
	if port < 1 || port > 65535 {
		return errwrap.NewConfigInvalidError(fmt.Sprintf("server port %d out of range", port))
	}
	return nil
}
