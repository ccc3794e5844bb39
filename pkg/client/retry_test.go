package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var nopLogger = zerolog.Nop()

// fastRetry keeps test backoffs in the millisecond range.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        300 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func serverErr() error {
	return &APIError{StatusCode: 500, ErrorClass: ErrorClassServer, Message: "500 Internal Server Error"}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	tests := []struct {
		name             string
		errorClass       ErrorClass
		expectedInitial  time.Duration
		expectedMax      time.Duration
		expectedAttempts int
	}{
		{
			name:             "server error config",
			errorClass:       ErrorClassServer,
			expectedInitial:  1 * time.Second,
			expectedMax:      10 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "rate limit config",
			errorClass:       ErrorClassRateLimit,
			expectedInitial:  5 * time.Second,
			expectedMax:      60 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "network error config",
			errorClass:       ErrorClassNetwork,
			expectedInitial:  2 * time.Second,
			expectedMax:      30 * time.Second,
			expectedAttempts: 3,
		},
		{
			name:             "unknown error class uses default",
			errorClass:       "",
			expectedInitial:  1 * time.Second,
			expectedMax:      30 * time.Second,
			expectedAttempts: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := RetryConfigForErrorClass(tt.errorClass)

			if config.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.expectedInitial)
			}
			if config.MaxBackoff != tt.expectedMax {
				t.Errorf("MaxBackoff = %v, want %v", config.MaxBackoff, tt.expectedMax)
			}
			if config.MaxAttempts != tt.expectedAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.expectedAttempts)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(), nopLogger, func(int) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	var attempts []int
	err := retryWithBackoff(context.Background(), fastRetry(), nopLogger, func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return serverErr()
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Errorf("attempts = %v, want [1 2 3]", attempts)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(), nopLogger, func(int) error {
		callCount++
		return serverErr()
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("Expected wrapped APIError with status 500, got %v", err)
	}

	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	callCount := 0
	testErr := &APIError{StatusCode: 404, ErrorClass: ErrorClassClient, Message: "404 Not Found"}

	err := retryWithBackoff(context.Background(), fastRetry(), nopLogger, func(int) error {
		callCount++
		return testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors (no retry attempted)")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_PlainErrorsAreNetworkClass(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(), nopLogger, func(int) error {
		callCount++
		return errors.New("connection reset")
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := retryWithBackoff(ctx, fastRetry(), nopLogger, func(int) error {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return serverErr()
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_ContextCancelledImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	err := retryWithBackoff(ctx, fastRetry(), nopLogger, func(int) error {
		callCount++
		return nil
	})

	if callCount != 0 {
		t.Errorf("Expected no call on a cancelled context, got %d", callCount)
	}
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
}

func TestRetryWithBackoff_RetryAfterOverridesBackoff(t *testing.T) {
	cfg := fastRetry()
	cfg.InitialBackoff = 5 * time.Second // would time the test out if used

	var timestamps []time.Time
	err := retryWithBackoff(context.Background(), cfg, nopLogger, func(attempt int) error {
		timestamps = append(timestamps, time.Now())
		if attempt == 1 {
			return &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, RetryAfter: 20 * time.Millisecond}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(timestamps) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(timestamps))
	}
	if d := timestamps[1].Sub(timestamps[0]); d < 20*time.Millisecond || d > 2*time.Second {
		t.Errorf("Retry-After delay = %v, want ~20ms", d)
	}
}

func TestBackoffFor_ExponentialWithJitter(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{attempt: 1, base: 100 * time.Millisecond},
		{attempt: 2, base: 200 * time.Millisecond},
		{attempt: 3, base: 400 * time.Millisecond},
		{attempt: 10, base: time.Second},
	}

	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			d := cfg.backoffFor(tt.attempt)
			low := time.Duration(float64(tt.base) * 0.8)
			high := time.Duration(float64(tt.base) * 1.2)
			if d < low || d > high {
				t.Errorf("backoffFor(%d) = %v, want within [%v, %v]", tt.attempt, d, low, high)
			}
		}
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	config := RetryConfig{
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        3 * time.Second,
		BackoffMultiplier: 10.0,
	}

	for i := 0; i < 20; i++ {
		if d := config.backoffFor(4); d > time.Duration(float64(config.MaxBackoff)*1.2) {
			t.Errorf("backoffFor(4) = %v, expected cap near %v", d, config.MaxBackoff)
		}
	}
}
