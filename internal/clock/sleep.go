// Package clock provides helpers for time-related operations.
package clock

import (
	"context"
	"time"
)

// SleepWithContext waits for the duration or returns early if the context is canceled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NowFunc returns the current wall-clock time. Components that derive state
// from time take one so tests can pin it.
type NowFunc func() time.Time

// System is the real wall clock.
func System() time.Time { return time.Now() }

// Fixed returns a NowFunc frozen at t.
func Fixed(t time.Time) NowFunc {
	return func() time.Time { return t }
}

// UnixNow returns the current time of fn in unix seconds, defaulting to the system clock.
func UnixNow(fn NowFunc) int64 {
	if fn == nil {
		return time.Now().Unix()
	}
	return fn().Unix()
}
