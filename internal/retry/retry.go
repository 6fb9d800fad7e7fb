// Package retry wraps fallible external calls with a bounded exponential
// backoff policy.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. The wait after attempt n is
// InitialDelay * BackoffFactor^(n-1), without jitter.
type Policy struct {
	Retries       int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultPolicy returns 3 attempts starting at one second and doubling.
func DefaultPolicy() Policy {
	return Policy{
		Retries:       3,
		InitialDelay:  time.Second,
		BackoffFactor: 2,
	}
}

// Delay returns the wait that follows the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1)))
}

func (p Policy) normalized() Policy {
	if p.Retries < 1 {
		p.Retries = 1
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Millisecond
	}
	return p
}

// Notify is called before each wait with the attempt that just failed.
type Notify func(attempt int, err error, wait time.Duration)

type options struct {
	notify Notify
}

// Option configures a single Do call.
type Option func(*options)

// WithNotify registers a callback invoked after every failed, retryable attempt.
func WithNotify(fn Notify) Option {
	return func(o *options) { o.notify = fn }
}

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. On exhaustion the last error is returned as is.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), opts ...Option) (T, error) {
	p = p.normalized()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          p.BackoffFactor,
		MaxInterval:         p.Delay(p.Retries),
	}

	attempt := 0
	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.Retries)),
		backoff.WithMaxElapsedTime(0),
	}
	if o.notify != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(func(err error, wait time.Duration) {
			o.notify(attempt, err, wait)
		}))
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		return op(ctx)
	}, retryOpts...)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return res, err
}

// Wrap turns fn into a function that applies p on every call.
func Wrap[A, T any](p Policy, fn func(context.Context, A) (T, error), opts ...Option) func(context.Context, A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		return Do(ctx, p, func(ctx context.Context) (T, error) {
			return fn(ctx, arg)
		}, opts...)
	}
}
