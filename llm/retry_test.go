package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            false,
	}

	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}

	for i, expected := range delays {
		got := policy.Delay(i)
		if got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
}

func TestRetryPolicyDelayWithMaxCap(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          5.0,
		Jitter:            false,
	}

	// Attempt 10 would be 1024s without cap.
	got := policy.Delay(10)
	if got != 5*time.Second {
		t.Errorf("expected 5s (capped), got %v", got)
	}
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            true,
	}

	// With jitter, delay should be within +/- 50% of base delay.
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Errorf("jittered delay %v outside [0.5s, 1.5s]", got)
		}
	}
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		BaseDelay:         0.001,
		MaxDelay:          0.01,
		BackoffMultiplier: 2.0,
	}
}

func retryableErr() error {
	return &ServerError{ProviderError: ProviderError{
		ClientError: ClientError{Message: "server busy"},
		StatusCode:  503,
		Retryable:   true,
	}}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want ok after 1", got, calls)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", retryableErr()
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" || calls != 2 {
		t.Errorf("got %q after %d calls, want recovered after 2", got, calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	authErr := &AuthenticationError{ProviderError: ProviderError{
		ClientError: ClientError{Message: "bad key"},
		StatusCode:  401,
	}}
	_, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		return "", authErr
	})
	if !errors.Is(err, authErr) {
		t.Errorf("expected the auth error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 (no retry for auth)", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		return "", retryableErr()
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3 (initial + 2 retries)", calls)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	after := 0.005 // 5ms, below the 10ms cap
	rlErr := &RateLimitError{ProviderError: ProviderError{
		ClientError: ClientError{Message: "rate limited"},
		StatusCode:  429,
		Retryable:   true,
		RetryAfter:  &after,
	}}

	calls := 0
	got, err := Retry(context.Background(), fastPolicy(1), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", rlErr
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestRetryAbortsWhenRetryAfterExceedsCap(t *testing.T) {
	after := 300.0 // far beyond MaxDelay
	rlErr := &RateLimitError{ProviderError: ProviderError{
		ClientError: ClientError{Message: "rate limited"},
		StatusCode:  429,
		Retryable:   true,
		RetryAfter:  &after,
	}}

	calls := 0
	start := time.Now()
	_, err := Retry(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		return "", rlErr
	})
	if err == nil {
		t.Fatal("expected error when Retry-After exceeds the delay cap")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("Retry waited instead of giving up immediately")
	}
}

func TestRetryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         10.0, // long enough that cancel wins
		MaxDelay:          60.0,
		BackoffMultiplier: 2.0,
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, policy, func(context.Context) (string, error) {
		return "", retryableErr()
	})
	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Errorf("expected *AbortError on cancellation, got %T: %v", err, err)
	}
}

func TestRetryOnRetryCallback(t *testing.T) {
	var attempts []int
	policy := fastPolicy(2)
	policy.OnRetry = func(_ error, attempt int, _ time.Duration) {
		attempts = append(attempts, attempt)
	}

	calls := 0
	_, err := Retry(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", retryableErr()
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
}
