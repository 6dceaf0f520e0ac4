package failure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

// Backoff returns the pause after the given zero-based failed attempt.
type Backoff func(attempt int) time.Duration

// LinearBackoff yields (attempt+1)*step.
func LinearBackoff(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt+1) * step
	}
}

type retryableError struct{ err error }

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

// Retryable marks err as worth another attempt inside Retry.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

func isRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// Retry runs fn up to attempts times. Only errors marked with Retryable
// are retried; anything else is returned immediately. The returned error
// is the last error from fn with the Retryable marker removed.
func Retry(ctx context.Context, attempts int, backoff Backoff, fn func(ctx context.Context, attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if backoff == nil {
		backoff = LinearBackoff(0)
	}

	attempt := 0
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		d := backoff(attempt - 1)
		if d <= 0 {
			d = time.Nanosecond
		}
		return d, false
	})
	b = retry.WithMaxRetries(uint64(attempts-1), b)

	var last error
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		current := attempt
		attempt++
		last = fn(ctx, current)
		if last == nil {
			return nil
		}
		if isRetryable(last) {
			return retry.RetryableError(last)
		}
		return last
	})
	if err == nil {
		return nil
	}
	if last == nil {
		return err
	}
	return unmark(last)
}

func unmark(err error) error {
	if r, ok := err.(*retryableError); ok {
		return r.err
	}
	return err
}
