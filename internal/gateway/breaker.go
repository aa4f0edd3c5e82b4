package gateway

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bobmcallan/divfolio/internal/clients/eodhd"
	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/telemetry"
)

// BreakerSettings configures the provider circuit breaker
type BreakerSettings struct {
	Enabled             bool
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// breaker wraps provider calls. Only transient errors count as failures.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(name string, s BreakerSettings, logger *common.Logger, metrics *telemetry.Metrics) *breaker {
	if !s.Enabled {
		return &breaker{}
	}
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 10
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !eodhd.IsTemporary(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Provider circuit breaker state change")
			metrics.SetBreakerState(name, float64(to))
		},
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *breaker) execute(fn func() error) error {
	if b.cb == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
