package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func alwaysRetryable(error) bool { return true }

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), zap.NewNop(), "op", alwaysRetryable,
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttemptBudget(t *testing.T) {
	wrapped := errors.New("still down")
	calls := 0
	err := fastPolicy(4).Do(context.Background(), zap.NewNop(), "op", alwaysRetryable,
		func(ctx context.Context) error {
			calls++
			return wrapped
		})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if !errors.Is(err, wrapped) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "exhausted") {
		t.Errorf("expected exhaustion in message, got %q", err)
	}
}

func TestRetryStopsOnTerminalError(t *testing.T) {
	terminal := errors.New("wrong bond")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), zap.NewNop(), "op",
		func(err error) bool { return !errors.Is(err, terminal) },
		func(ctx context.Context) error {
			calls++
			return terminal
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("terminal error must not be retried, got %d calls", calls)
	}
	if !errors.Is(err, terminal) {
		t.Errorf("expected terminal cause, got %v", err)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}
	errCh := make(chan error, 1)
	go func() {
		errCh <- policy.Do(ctx, zap.NewNop(), "op", alwaysRetryable,
			func(ctx context.Context) error {
				calls++
				return errors.New("transient")
			})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), zap.NewNop(), "op", alwaysRetryable,
		func(ctx context.Context) error {
			calls++
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one call, got %d", calls)
	}
}
