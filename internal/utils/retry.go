package utils

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	apperrors "github.com/socialchef/ttlcache/internal/errors"
)

// RetryConfig holds the configuration for the retry mechanism.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	Timeout         time.Duration
	RetryableErrors []string

	// FullJitter picks each delay uniformly in [0, backoff] instead of
	// adding up to 10% on top of it.
	FullJitter bool
}

// RetryableFunc defines the signature for operations that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// DefaultRetryConfig returns a RetryConfig with sensible default values.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Timeout:       30 * time.Second,
		RetryableErrors: []string{
			"timeout",
			"connection reset",
			"rate limit",
			"connection refused",
			"eof",
		},
	}
}

// UpstreamRetryConfig is used for chat-completion calls: three attempts
// with a random exponential wait between 1s and 60s.
func UpstreamRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxDelay = 60 * time.Second
	cfg.Timeout = 120 * time.Second
	cfg.FullJitter = true
	return cfg
}

// IsRetryableError reports whether err is worth another attempt. Structured
// application errors decide for themselves; anything else is matched
// against patterns.
func IsRetryableError(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.IsRetryable()
	}

	errMsg := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(errMsg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// Backoff returns the wait before the attempt after the given one (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt-1)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}

	if c.FullJitter {
		if delay <= c.InitialDelay {
			return delay
		}
		return c.InitialDelay + time.Duration(rand.Int63n(int64(delay-c.InitialDelay)))
	}

	if jitterRange := int64(delay) / 10; jitterRange > 0 {
		delay += time.Duration(rand.Int63n(jitterRange))
	}
	return delay
}

// WithRetry executes the given operation with retries based on the provided config.
func WithRetry[T any](ctx context.Context, operation RetryableFunc[T], config RetryConfig) (T, error) {
	var lastErr error
	var zero T

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, config.Timeout)
		result, err := operation(attemptCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == config.MaxAttempts || !IsRetryableError(err, config.RetryableErrors) {
			break
		}

		select {
		case <-time.After(config.Backoff(attempt)):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}
