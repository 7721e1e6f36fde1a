package coreapi

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 8 * time.Second
)

// RetryPolicy bounds repeated attempts of a non-idempotent-safe operation.
// Token refresh carries a policy with retries by default; the push client
// carries a zero-retry policy unless the caller explicitly opts in. Only
// network-class failures are ever retried: a gateway rejection is final.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
	// Retryable decides whether a failed attempt may be repeated.
	// Defaults to IsNetworkError.
	Retryable func(error) bool
}

// NewRetryPolicy returns a policy with the default capped-exponential
// schedule (1s base doubling to an 8s cap) and the network-only predicate.
func NewRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		Base:       defaultBackoffBase,
		Cap:        defaultBackoffCap,
		Retryable:  IsNetworkError,
	}
}

// Backoff builds the delay schedule for one run. RandomizationFactor is zero
// so delays are exactly min(base * 2^(attempt-1), cap).
func (p RetryPolicy) Backoff() *backoff.ExponentialBackOff {
	base := p.Base
	if base <= 0 {
		base = defaultBackoffBase
	}
	ceiling := p.Cap
	if ceiling <= 0 {
		ceiling = defaultBackoffCap
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = ceiling
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsNetworkError(err)
}

// Do runs op, retrying up to MaxRetries extra attempts while the failure is
// retryable, sleeping the backoff delay between attempts. The context is
// honored both inside op and while waiting out a delay.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := p.Backoff()
	var err error
	for attempt := 0; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !p.retryable(err) {
			return err
		}
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return classifyTransportError("retry wait", ctx.Err())
		}
	}
}
