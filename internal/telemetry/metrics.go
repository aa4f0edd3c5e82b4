// Package telemetry holds the Prometheus metrics and the optional HTTP
// listener exposing them alongside live analysis progress.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for divfolio. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheSize   *prometheus.GaugeVec

	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	ProviderRetries *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec

	SymbolOutcomes *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	RunProgress    prometheus.Gauge
	ActiveWorkers  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divfolio_cache_hits_total",
				Help: "Cache hits by tier",
			},
			[]string{"tier"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divfolio_cache_misses_total",
				Help: "Cache misses by tier",
			},
			[]string{"tier"},
		),
		CacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "divfolio_cache_entries",
				Help: "Stored entries by tier, expired ones included until read",
			},
			[]string{"tier"},
		),
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divfolio_provider_calls_total",
				Help: "Provider calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "divfolio_provider_latency_seconds",
				Help:    "Provider call latency including limiter wait",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		ProviderRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divfolio_provider_retries_total",
				Help: "Retries of transient provider failures",
			},
			[]string{"operation"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "divfolio_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"breaker"},
		),
		SymbolOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "divfolio_symbol_outcomes_total",
				Help: "Analysed symbols by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "divfolio_run_duration_seconds",
				Help:    "Analysis run duration",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		RunProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "divfolio_run_progress_ratio",
				Help: "Completed fraction of the current analysis run",
			},
		),
		ActiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "divfolio_active_workers",
				Help: "Workers currently processing a symbol",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits, m.CacheMisses, m.CacheSize,
			m.ProviderCalls, m.ProviderLatency, m.ProviderRetries, m.BreakerState,
			m.SymbolOutcomes, m.RunDuration, m.RunProgress, m.ActiveWorkers,
		)
	}
	return m
}

// CacheLookup records a hit or miss for a cache tier
func (m *Metrics) CacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(tier).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(tier).Inc()
}

// ProviderCall records one provider attempt
func (m *Metrics) ProviderCall(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(operation, outcome).Inc()
	m.ProviderLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ProviderRetry records a retry of a transient failure
func (m *Metrics) ProviderRetry(operation string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(operation).Inc()
}

// SetCacheEntries records the entry count of a cache tier
func (m *Metrics) SetCacheEntries(tier string, n int) {
	if m == nil {
		return
	}
	m.CacheSize.WithLabelValues(tier).Set(float64(n))
}

// SetBreakerState records a breaker transition
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(state)
}

// SymbolOutcome records how one symbol finished
func (m *Metrics) SymbolOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SymbolOutcomes.WithLabelValues(outcome).Inc()
}

// RunFinished records a completed run
func (m *Metrics) RunFinished(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(elapsed.Seconds())
}

// SetProgress records the completed fraction of the current run
func (m *Metrics) SetProgress(ratio float64) {
	if m == nil {
		return
	}
	m.RunProgress.Set(ratio)
}

// WorkerBusy adjusts the active worker gauge by delta
func (m *Metrics) WorkerBusy(delta float64) {
	if m == nil {
		return
	}
	m.ActiveWorkers.Add(delta)
}
