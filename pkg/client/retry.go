package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ForErrorClass scales the backoff for an error class. Rate limit errors
// wait longest, network errors a little longer than server errors.
func (r RetryConfig) ForErrorClass(errorClass ErrorClass) RetryConfig {
	out := r
	switch errorClass {
	case ErrorClassServer:
		out.MaxBackoff = min(r.MaxBackoff, 10*r.InitialBackoff)
	case ErrorClassRateLimit:
		out.InitialBackoff = 5 * r.InitialBackoff
		out.MaxBackoff = max(r.MaxBackoff, 60*r.InitialBackoff)
	case ErrorClassNetwork:
		out.InitialBackoff = 2 * r.InitialBackoff
	}
	return out
}

// RetryConfigForErrorClass returns the default retry configuration for an error class.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	return DefaultRetryConfig().ForErrorClass(errorClass)
}

// backoffFor returns the jittered delay before attempt+1.
func (r RetryConfig) backoffFor(attempt int) time.Duration {
	backoff := float64(r.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= r.BackoffMultiplier
		if backoff > float64(r.MaxBackoff) {
			backoff = float64(r.MaxBackoff)
			break
		}
	}

	// ±20% jitter
	return time.Duration(backoff * (0.8 + rand.Float64()*0.4))
}

// retryWithBackoff executes fn until it succeeds, fails with a non-retryable
// error class, or MaxAttempts is reached. The error class of each failure
// selects the backoff curve; an APIError with RetryAfter overrides it.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func(attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	var errorClass ErrorClass

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = classOf(err)

		if !shouldRetry(errorClass) {
			return lastErr
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		wait := cfg.ForErrorClass(errorClass).backoffFor(attempt)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())

		logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	logger.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
