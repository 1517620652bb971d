package cache

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffPolicy define cuantas veces y con que espera se reintenta una
// operacion contra el backend del cache.
type BackoffPolicy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 3,
		Delay:       ExponentialDelay(50*time.Millisecond, 500*time.Millisecond),
	}
}

// NoRetry ejecuta cada operacion una sola vez.
func NoRetry() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 1}
}

// ExponentialDelay duplica base en cada intento hasta max.
func ExponentialDelay(base, max time.Duration) func(int) time.Duration {
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	if max < base {
		max = base
	}
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return d
	}
}

func (p BackoffPolicy) attempts() uint {
	if p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

type policyBackOff struct {
	delay   func(int) time.Duration
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.delay == nil {
		return 0
	}
	return b.delay(b.attempt)
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}

func retry[T any](ctx context.Context, p BackoffPolicy, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(&policyBackOff{delay: p.Delay}),
		backoff.WithMaxTries(p.attempts()),
	)
}
