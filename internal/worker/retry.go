package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy is the single retry/backoff policy shared by provider calls
// and ledger submissions: bounded attempts, exponential delay, and a
// retryable-error predicate deciding which failures are worth another try.
type RetryPolicy struct {
	// MaxAttempts bounds total tries, including the first
	MaxAttempts int

	// BaseDelay is the wait after the first failure; doubles per attempt
	BaseDelay time.Duration

	// MaxDelay caps backoff growth
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the standard submission policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
	}
}

// Do runs fn until it succeeds, returns a terminal error, exhausts the
// attempt budget, or the context is cancelled. Every retry is logged with
// its attempt count and backoff duration.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string, retryable func(error) bool, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return fmt.Errorf("%s: terminal: %w", op, lastErr)
		}
		if attempt == attempts {
			break
		}

		logger.Warn("retrying after transient failure",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("backoff", delay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("%s: %d attempts exhausted: %w", op, attempts, lastErr)
}
