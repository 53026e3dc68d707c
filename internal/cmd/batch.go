package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/observability"
	"github.com/disputekit/disputekit/internal/output"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run and inspect dispute batches",
}

var batchRunCmd = &cobra.Command{
	Use:   "run <manifest.yaml>",
	Short: "Run a dispute batch from a manifest file",
	Long: `Render and submit dispute letters for every client in the manifest.

The batch runs in this process. Ctrl+C cancels clients that have not started;
clients already in flight finish and are reported. Use "-" to read the
manifest from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded batches, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBatchList,
}

var batchShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show a recorded batch and its per-client results",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatchShow,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchRunCmd, batchListCmd, batchShowCmd)

	batchCmd.PersistentFlags().String("output", "table", "Output format: table, json, markdown")
	batchRunCmd.Flags().Bool("fail-on-error", false, "Exit non-zero when any client fails")
	batchListCmd.Flags().Int("limit", 20, "Maximum batches to list")
}

func outputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

func runBatch(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	failOnError, err := cmd.Flags().GetBool("fail-on-error")
	if err != nil {
		return err
	}

	req, err := readBatchManifest(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	logger := observability.CLILogger
	manager, _, err := newManager(ctx, cfg, st, logger)
	if err != nil {
		return err
	}

	id, err := manager.StartBatch(ctx, req)
	if err != nil {
		return err
	}
	logger.Info("Batch started",
		zap.String("batch_id", id),
		zap.String("template_id", req.TemplateID),
		zap.Int("clients", len(req.Selections)))

	updates, err := manager.Subscribe(id, 16)
	if err != nil {
		return err
	}
	go func() {
		for snap := range updates {
			logger.Info("Batch progress",
				zap.String("batch_id", snap.BatchID),
				zap.String("status", string(snap.Status)),
				zap.Int("completed", snap.Completed),
				zap.Int("total", snap.Total),
				zap.Int("failed", snap.Failed))
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	finished := make(chan struct{})
	go watchInterrupt(sigs, finished, func() {
		logger.Warn("Interrupted: cancelling remaining clients", zap.String("batch_id", id))
		_ = manager.Cancel(id)
	})

	result, err := manager.Wait(context.Background(), id)
	signal.Stop(sigs)
	close(finished)
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatBatch(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)

	if failOnError && result.FailedCount > 0 {
		return fmt.Errorf("batch %s: %d of %d clients failed", id, result.FailedCount, result.Total)
	}
	return nil
}

// watchInterrupt calls onInterrupt if a signal arrives before finished closes.
func watchInterrupt(sigs <-chan os.Signal, finished <-chan struct{}, onInterrupt func()) {
	select {
	case <-sigs:
		onInterrupt()
	case <-finished:
	}
}

func runBatchList(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	batches, err := st.ListBatches(ctx, limit)
	if err != nil {
		return err
	}
	rendered, err := output.FormatBatchList(format, batches)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}

func runBatchShow(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() // nolint:errcheck // best-effort close at exit

	result, err := st.GetBatch(ctx, args[0])
	if err != nil {
		return err
	}
	if result.Status == core.BatchRunning || result.Status == core.BatchCreated {
		observability.CLILogger.Warn("Batch has not finished; results are partial",
			zap.String("batch_id", result.BatchID),
			zap.String("status", string(result.Status)))
	}

	rendered, err := output.NewFormatter(format).FormatBatch(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}
