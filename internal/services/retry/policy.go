// Package retry runs an operation a bounded number of times with a fixed pause between
// attempts.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying under the default classification.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Policy is a fixed-count, fixed-delay retry policy. No jitter, no growth.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Retryable decides whether a failed attempt is tried again. Nil means DefaultRetryable.
	Retryable func(error) bool
}

func Default() Policy {
	return Policy{MaxAttempts: 3, Delay: time.Second, Retryable: DefaultRetryable}
}

// DefaultRetryable retries everything except cancellation and errors marked Permanent.
func DefaultRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsPermanent(err)
}

// Do calls op until it succeeds, fails with a non-retryable error or MaxAttempts is
// reached. It reports how many attempts were made.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := op(ctx)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	return attempts, err
}
