package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/auction-indexer/internal/clock"
	"github.com/auction-indexer/internal/logging"
)

// Classifier decides whether an error is worth another attempt
type Classifier func(err error) bool

// RetryAll treats every error as transient. Ledger reads use it by default,
// so a reverted call is retried the same as a dropped connection.
func RetryAll(err error) bool {
	return err != nil
}

// Policy configures retry behavior
type Policy struct {
	MaxAttempts int           // Total attempts including the first one
	Delay       time.Duration // Delay before the first retry
	Multiplier  float64       // Growth factor between retries; <= 1 keeps the delay fixed
	MaxDelay    time.Duration // Cap on the delay, 0 = uncapped
	Classifier  Classifier    // nil = RetryAll
}

// DefaultPolicy returns the ledger read policy: one retry after a fixed 1s pause
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Delay:       1 * time.Second,
		Multiplier:  1,
		Classifier:  RetryAll,
	}
}

// ExhaustedError is returned when every attempt failed
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Func is a function that can be retried
type Func func(ctx context.Context, attempt int) error

// sleep is swapped out in tests
var sleep = clock.SleepWithContext

// Do runs fn until it succeeds, the classifier rejects the error, the
// attempts run out or ctx is done. Non-retryable errors are returned as-is;
// exhaustion is reported as *ExhaustedError.
func Do(ctx context.Context, policy Policy, operation string, fn Func) error {
	logger := logging.FromContext(ctx)

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	classify := policy.Classifier
	if classify == nil {
		classify = RetryAll
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"operation": operation,
					"attempts":  attempt,
				}).Info("Operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !classify(err) {
			return err
		}
		if attempt >= attempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := policy.delay(attempt)
		logger.WithFields(map[string]interface{}{
			"operation":   operation,
			"attempt":     attempt,
			"maxAttempts": attempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("Operation failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &ExhaustedError{Operation: operation, Attempts: attempts, Err: lastErr}
}

// DoValue is Do for functions that produce a value
func DoValue[T any](ctx context.Context, policy Policy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, policy, operation, func(ctx context.Context, _ int) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// IsExhausted reports whether err came from running out of attempts
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// delay calculates the pause after the given failed attempt
func (p Policy) delay(attempt int) time.Duration {
	if p.Multiplier <= 1 {
		return p.Delay
	}
	d := float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}
