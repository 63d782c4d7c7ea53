package client

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
)

// RetryConfig holds configuration for retry with backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the first backoff duration.
	// Default: 200ms
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	// Default: 5s
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the backoff after each attempt.
	// Default: 2.0
	BackoffMultiplier float64

	// Jitter randomizes each backoff.
	// Default: true
	Jitter bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// retryWithBackoff runs operation until it succeeds, returns a NoRetryError,
// the attempts run out, or ctx ends. onRetry is called before each wait.
// The returned error has NoRetry/RetryAfter wrappers removed.
func retryWithBackoff(ctx context.Context, config RetryConfig, operation func() error, onRetry func(attempt int, err error)) error {
	b := &backoff.Backoff{
		Min:    config.InitialBackoff,
		Max:    config.MaxBackoff,
		Factor: config.BackoffMultiplier,
		Jitter: config.Jitter,
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		var noRetry *core.NoRetryError
		if errors.As(lastErr, &noRetry) {
			return noRetry.Err
		}

		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		wait := b.Duration()
		var retryAfter *core.RetryAfterError
		if errors.As(lastErr, &retryAfter) && retryAfter.Delay > 0 {
			wait = retryAfter.Delay
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	var retryAfter *core.RetryAfterError
	if errors.As(lastErr, &retryAfter) {
		return retryAfter.Err
	}
	return lastErr
}

// IsRetryableError reports whether a submission error is worth retrying:
// transport failures, 5xx and 429.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var noRetry *core.NoRetryError
	if errors.As(err, &noRetry) {
		return false
	}

	var httpErr *core.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}

	var connErr *core.ConnectionError
	return errors.As(err, &connErr)
}
