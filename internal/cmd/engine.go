package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/disputekit/disputekit/internal/config"
	"github.com/disputekit/disputekit/internal/core/engine"
	"github.com/disputekit/disputekit/internal/core/letter"
	"github.com/disputekit/disputekit/internal/core/store"
)

// newRenderer builds a renderer whose reference sequence continues after the
// highest reference already stored for the current year.
func newRenderer(ctx context.Context, cfg *config.Config, st *store.Store) (*letter.Renderer, error) {
	resolver := letter.NewResolver(letter.Company{
		Name:    cfg.Company.Name,
		Address: cfg.Company.Address,
		Phone:   cfg.Company.Phone,
		Email:   cfg.Company.Email,
	})
	renderer := letter.NewRenderer(resolver)

	last, err := st.LastReferenceSeq(ctx, time.Now().Year())
	if err != nil {
		return nil, fmt.Errorf("seed reference sequence: %w", err)
	}
	renderer.NextReference = letter.ReferenceSequence(last, time.Now)
	return renderer, nil
}

// newManager wires the batch engine over st using the batch settings in cfg.
func newManager(ctx context.Context, cfg *config.Config, st *store.Store, logger *logging.Logger) (*engine.Manager, *letter.Renderer, error) {
	renderer, err := newRenderer(ctx, cfg, st)
	if err != nil {
		return nil, nil, err
	}

	coordinator := &engine.Coordinator{
		Clients:     st,
		Renderer:    renderer,
		Submitter:   engine.NewSubmitter(st, cfg.Batch.SubmitRate),
		Concurrency: cfg.Batch.Concurrency,
		Retry:       retryConfig(cfg.Batch),
		Logger:      logger,
	}

	manager := engine.NewManager(st, coordinator, st)
	manager.Logger = logger
	if cfg.Batch.DefaultDueDays > 0 {
		manager.DueDays = cfg.Batch.DefaultDueDays
	}
	return manager, renderer, nil
}

func retryConfig(cfg config.BatchConfig) engine.RetryConfig {
	retry := engine.DefaultRetryConfig
	retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.RetryBackoff > 0 {
		retry.InitialBackoff = cfg.RetryBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}
	return retry
}
