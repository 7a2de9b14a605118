package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

func (a ErrorAction) String() string {
	if a == ActionFatal {
		return "fatal"
	}
	return "retry"
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests,
			se.Code == http.StatusRequestTimeout,
			se.Code >= 500:
			return ActionRetry
		default:
			// Request issues: bad input, auth, unknown resource
			return ActionFatal
		}
	}

	// Network errors, truncated bodies
	return ActionRetry
}

// CallWithRetry runs call with exponential backoff until it succeeds, fails
// fatally or runs out of attempts.
func CallWithRetry(ctx context.Context, config RetryConfig, call func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ClassifyError(err) == ActionFatal {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, config)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > delay {
			delay = min(se.RetryAfter, config.MaxDelay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
