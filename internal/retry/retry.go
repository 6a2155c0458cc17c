// Package retry provides a small bounded-retry helper with pluggable backoff.
//
// It exists for the hosted storage backend: idempotent reads (get, search,
// statistics) are retried a few times before the failure surfaces, while
// writes stay fail-fast — retrying a non-idempotent insert over HTTP risks
// creating duplicates.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Strategy maps a 1-based attempt number to the delay before the next attempt.
type Strategy func(attempt int) time.Duration

// ExponentialBackoff doubles the delay each attempt: base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) Strategy {
	return func(attempt int) time.Duration {
		return base * (1 << (attempt - 1))
	}
}

// ExponentialJitterBackoff doubles the delay each attempt, caps it at max,
// and randomises the second half so concurrent callers don't retry in step.
func ExponentialJitterBackoff(base, max time.Duration) Strategy {
	return func(attempt int) time.Duration {
		backoff := base * (1 << (attempt - 1))
		if backoff > max {
			backoff = max
		}
		jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
		return backoff/2 + jitter
	}
}

// Options configures a retry loop. Zero values get sane defaults.
type Options struct {
	MaxAttempts int
	Strategy    Strategy
	ShouldRetry func(error) bool
}

// Do runs fn until it succeeds, the context is cancelled, ShouldRetry says
// stop, or MaxAttempts is exhausted. The last error is returned unchanged so
// callers can still match it with errors.Is.
func Do[T any](ctx context.Context, opts Options, fn func() (T, error)) (T, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Strategy == nil {
		opts.Strategy = ExponentialBackoff(500 * time.Millisecond)
	}
	if opts.ShouldRetry == nil {
		opts.ShouldRetry = func(err error) bool { return err != nil }
	}

	var zero, resp T
	var err error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		resp, err = fn()
		if err == nil {
			return resp, nil
		}

		if !opts.ShouldRetry(err) {
			return zero, err
		}

		if attempt == opts.MaxAttempts {
			break
		}

		select {
		case <-time.After(opts.Strategy(attempt)):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, err
}
