// Package retrier runs an operation with capped exponential backoff. Only
// errors marked with Transient are retried.
package retrier

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/xeptore/playtag/config"
)

type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func FromConfig(conf config.Retry) Policy {
	return Policy{
		MaxRetries: uint64(max(conf.MaxRetries, 0)), //nolint:gosec
		BaseDelay:  conf.BaseDelay.Duration,
		MaxDelay:   conf.MaxDelay.Duration,
	}
}

const minDelay = time.Millisecond

func (p Policy) backoff() retry.Backoff {
	b := retry.NewExponential(max(p.BaseDelay, minDelay))
	b = retry.WithJitterPercent(10, b)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}

	return retry.WithMaxRetries(p.MaxRetries, b)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks err as eligible for another attempt.
func Transient(err error) error {
	if nil == err {
		return nil
	}

	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Do calls fn until it succeeds, returns a non-transient error, or the retry
// budget is spent. The returned error is the last one fn produced, with the
// transient marker still attached when the budget ran out.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	if err := ctx.Err(); nil != err {
		return err
	}

	var attempt int

	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		if err := fn(ctx, attempt); nil != err {
			if IsTransient(err) {
				return retry.RetryableError(err)
			}

			return err
		}

		return nil
	})
}
