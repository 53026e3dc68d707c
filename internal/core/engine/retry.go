package engine

import (
	"context"
	"time"
)

// RetryConfig controls retries of transient submission failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration

	// BackoffMultiply grows the delay after each retry.
	BackoffMultiply float64
}

// DefaultRetryConfig allows two retries after the first attempt.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialBackoff:  500 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiply: 2.0,
}

// RetryResult is the outcome of a retried operation.
type RetryResult struct {
	Attempts int
	LastErr  error
}

// RetryWithBackoff runs operation until it succeeds, returns an error that
// retryable rejects, or MaxAttempts is reached.
func RetryWithBackoff(
	ctx context.Context,
	cfg RetryConfig,
	retryable func(error) bool,
	operation func(ctx context.Context) error,
) RetryResult {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiply < 1 {
		cfg.BackoffMultiply = 1
	}
	backoff := cfg.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			return RetryResult{Attempts: attempt}
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return RetryResult{Attempts: attempt, LastErr: err}
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return RetryResult{Attempts: attempt, LastErr: lastErr}
			case <-timer.C:
			}
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiply)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return RetryResult{Attempts: cfg.MaxAttempts, LastErr: lastErr}
}
