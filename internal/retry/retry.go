// Package retry runs remote calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy defines how retries are scheduled.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultPolicy is used for dispatch and classifier calls unless configured otherwise.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// Error marks an error as transient.
type Error struct {
	Err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary wraps err so that Do retries it.
func Temporary(err error) error {
	return &Error{Err: err}
}

// TemporaryAfter wraps err with a server-provided delay hint.
func TemporaryAfter(err error, delay time.Duration) error {
	return &Error{Err: err, RetryAfter: delay}
}

// retryable is implemented by domain errors that carry their own transient flag.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err should trigger another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *Error
	if errors.As(err, &re) {
		return true
	}
	var r retryable
	return errors.As(err, &r) && r.Retryable()
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. Context cancellation stops the wait between attempts.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == policy.MaxRetries {
			break
		}

		wait := Backoff(policy, attempt)
		var re *Error
		if errors.As(err, &re) && re.RetryAfter > 0 {
			wait = re.RetryAfter
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retries exceeded (%d): %w", policy.MaxRetries, lastErr)
}

// Backoff returns the wait before attempt+1.
func Backoff(policy Policy, attempt int) time.Duration {
	factor := policy.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	backoff := float64(policy.InitialBackoff) * math.Pow(factor, float64(attempt))
	if policy.MaxBackoff > 0 && backoff > float64(policy.MaxBackoff) {
		backoff = float64(policy.MaxBackoff)
	}

	d := time.Duration(backoff)
	if policy.Jitter && d > 0 {
		// +/-10%
		d += time.Duration(float64(d) * 0.1 * (2*rand.Float64() - 1))
	}
	return d
}
