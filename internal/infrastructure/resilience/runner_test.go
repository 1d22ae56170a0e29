package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func alwaysRetryable(error) Classification {
	return Classification{Retryable: true, CountsAsFailure: true}
}

func neverRetryable(error) Classification {
	return Classification{CountsAsFailure: true}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	runner := NewRunner(Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BreakerEnabled: false,
	})

	calls := 0
	err := runner.Do(context.Background(), "test.flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, alwaysRetryable)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	runner := NewRunner(Config{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		BreakerEnabled: false,
	})

	calls := 0
	wantErr := errors.New("bad request")
	err := runner.Do(context.Background(), "test.fatal", func(context.Context) error {
		calls++
		return wantErr
	}, neverRetryable)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable errors must not be retried, got %d attempts", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	runner := NewRunner(Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BreakerEnabled: false,
	})

	calls := 0
	wantErr := errors.New("still broken")
	err := runner.Do(context.Background(), "test.exhausted", func(context.Context) error {
		calls++
		return wantErr
	}, alwaysRetryable)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	runner := NewRunner(Config{
		MaxAttempts:    10,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		BreakerEnabled: false,
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := runner.Do(ctx, "test.cancelled", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	}, alwaysRetryable)
	if err == nil {
		t.Fatalf("expected an error after cancellation")
	}
	if calls != 1 {
		t.Fatalf("cancellation must stop the retry loop, got %d attempts", calls)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	runner := NewRunner(Config{
		MaxAttempts:         1,
		InitialBackoff:      time.Millisecond,
		BreakerEnabled:      true,
		BreakerMinRequests:  3,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	})

	boom := errors.New("backend down")
	for i := 0; i < 3; i++ {
		if err := runner.Do(context.Background(), "test.breaker", func(context.Context) error {
			return boom
		}, neverRetryable); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected backend error, got %v", i, err)
		}
	}

	err := runner.Do(context.Background(), "test.breaker", func(context.Context) error {
		t.Fatalf("open breaker must not invoke the operation")
		return nil
	}, neverRetryable)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open-circuit error, got %v", err)
	}
}

func TestBreakersAreIsolatedPerOperation(t *testing.T) {
	runner := NewRunner(Config{
		MaxAttempts:         1,
		BreakerEnabled:      true,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	})

	boom := errors.New("down")
	for i := 0; i < 2; i++ {
		_ = runner.Do(context.Background(), "test.unhealthy", func(context.Context) error {
			return boom
		}, neverRetryable)
	}
	if err := runner.Do(context.Background(), "test.unhealthy", func(context.Context) error { return nil }, neverRetryable); !IsCircuitOpen(err) {
		t.Fatalf("unhealthy operation should be open, got %v", err)
	}

	if err := runner.Do(context.Background(), "test.healthy", func(context.Context) error { return nil }, neverRetryable); err != nil {
		t.Fatalf("healthy operation must stay closed, got %v", err)
	}
}
