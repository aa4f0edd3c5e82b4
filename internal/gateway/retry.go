package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of transient provider failures
type RetryPolicy struct {
	Attempts int           // total attempts including the first
	Step     time.Duration // fixed delay, or the increment for linear backoff
	Linear   bool
}

// DefaultRetryPolicy is three attempts one second apart
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Step: time.Second}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Linear {
		b = &linearBackOff{step: p.Step}
	} else {
		b = backoff.NewConstantBackOff(p.Step)
	}
	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// retry runs op until it succeeds, returns a backoff.Permanent error, the
// attempts run out or ctx is done. It returns the number of attempts made.
func (p RetryPolicy) retry(ctx context.Context, op func() error, onRetry func(err error, wait time.Duration)) (int, error) {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		return op()
	}, p.backOff(ctx), onRetry)
	return attempts, err
}
