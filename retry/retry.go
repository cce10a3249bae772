// Package retry runs operations against the storage network that are
// expected to fail transiently. Each attempt races a per-attempt timeout,
// failed attempts back off exponentially, and cancellation by the caller is
// reported distinctly from running out of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type (
	// A Policy bounds the retry loop for one class of operation. Policies
	// are fixed at construction; callers pick a policy per call site rather
	// than mutating a shared one.
	Policy struct {
		// MaxAttempts is the total number of attempts, including the first.
		// Values below 1 are treated as 1.
		MaxAttempts int
		// BaseBackoff is the delay after the first failed attempt. The delay
		// doubles after each subsequent failure.
		BaseBackoff time.Duration
		// Timeout bounds a single attempt. Zero means attempts are bounded
		// only by the caller's context.
		Timeout time.Duration
	}

	// An ExhaustedError is returned when every attempt failed. It carries
	// the error from the final attempt.
	ExhaustedError struct {
		Attempts int
		Last     error
	}

	// A CancelledError is returned when the caller's context ends before an
	// operation succeeds. It is distinct from ExhaustedError: the operation
	// was abandoned, not out of attempts.
	CancelledError struct {
		Err error
	}

	permanentError struct {
		err error
	}
)

// Error implements error.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the error from the final attempt.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// Error implements error.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled: %v", e.Err)
}

// Unwrap returns the context's error.
func (e *CancelledError) Unwrap() error { return e.Err }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as terminal. When an attempt returns a permanent
// error the loop stops immediately and the wrapped error is returned as-is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// backoff returns the delay after the given failed attempt.
func (p Policy) backoff(attempt int) time.Duration {
	return p.BaseBackoff << (attempt - 1)
}

// Do runs op under the policy. It returns nil as soon as an attempt
// succeeds, a *CancelledError if ctx ends first, the unwrapped cause if an
// attempt returns a Permanent error, and a *ExhaustedError once every
// attempt has failed.
func Do(ctx context.Context, p Policy, log *zap.Logger, op func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return &CancelledError{Err: err}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		} else if ctx.Err() != nil {
			// the caller gave up mid-attempt
			return &CancelledError{Err: ctx.Err()}
		}

		if attempt >= maxAttempts {
			return &ExhaustedError{Attempts: attempt, Last: err}
		}

		delay := p.backoff(attempt)
		log.Debug("attempt failed, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &CancelledError{Err: ctx.Err()}
		case <-timer.C:
		}
	}
}
