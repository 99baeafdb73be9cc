// Package metrics provides Prometheus metrics for gate operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for gate operations.
type Metrics struct {
	enabled bool

	// Decision metrics
	decisionsTotal *prometheus.CounterVec
	redirectsTotal *prometheus.CounterVec
	denialsTotal   *prometheus.CounterVec

	// Session lifecycle metrics
	hydrationsTotal   *prometheus.CounterVec
	hydrationDuration prometheus.Histogram
	signInFailures    *prometheus.CounterVec
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_decisions_total",
		Help: "Total authorization decisions",
	}, []string{"verdict"})

	m.redirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_redirects_total",
		Help: "Total redirect verdicts",
	}, []string{"target_kind"}) // sign_in or default_route

	m.denialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_denials_total",
		Help: "Total denial verdicts",
	}, []string{"reason"})

	m.hydrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_hydrations_total",
		Help: "Total session hydration attempts",
	}, []string{"result"}) // authenticated, unauthenticated, failed

	m.hydrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authgate_hydration_duration_seconds",
		Help:    "Session hydration duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.signInFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authgate_signin_failures_total",
		Help: "Total failed sign-in attempts",
	}, []string{"reason"})

	return m
}

// RecordDecision records an authorization verdict.
func (m *Metrics) RecordDecision(verdict string) {
	if !m.enabled {
		return
	}
	m.decisionsTotal.WithLabelValues(verdict).Inc()
}

// RecordRedirect records a redirect verdict by target kind
// ("sign_in" or "default_route").
func (m *Metrics) RecordRedirect(targetKind string) {
	if !m.enabled {
		return
	}
	m.redirectsTotal.WithLabelValues(targetKind).Inc()
}

// RecordDenial records a denial verdict.
func (m *Metrics) RecordDenial(reason string) {
	if !m.enabled {
		return
	}
	m.denialsTotal.WithLabelValues(reason).Inc()
}

// RecordHydration records a hydration attempt and its duration.
func (m *Metrics) RecordHydration(result string, durationSeconds float64) {
	if !m.enabled {
		return
	}
	m.hydrationsTotal.WithLabelValues(result).Inc()
	m.hydrationDuration.Observe(durationSeconds)
}

// RecordSignInFailure records a failed sign-in attempt.
func (m *Metrics) RecordSignInFailure(reason string) {
	if !m.enabled {
		return
	}
	m.signInFailures.WithLabelValues(reason).Inc()
}
