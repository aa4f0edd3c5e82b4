package gateway

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter spaces provider calls at least 1/perSecond apart across every
// caller. Waiting callers sleep; no call is dropped.
type Limiter struct {
	limiter   *rate.Limiter
	perSecond float64
}

// NewLimiter creates a limiter admitting perSecond calls per second with no burst
func NewLimiter(perSecond float64) *Limiter {
	return &Limiter{
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		perSecond: perSecond,
	}
}

// Wait blocks until the next call may proceed or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// PerSecond returns the configured rate
func (l *Limiter) PerSecond() float64 {
	return l.perSecond
}
