package server

import (
	"github.com/celemqhele/cvtailorpro/internal/fallback"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cvtailor"

// Metrics records fallback chain attempts.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the attempt collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider attempts by chain, provider, model and outcome.",
		}, []string{"chain", "provider", "model", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Duration of provider attempts.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"chain", "provider"}),
	}
	reg.MustRegister(m.attempts, m.duration)
	return m
}

// Observe implements fallback.Observer.
func (m *Metrics) Observe(r fallback.Report) {
	outcome := "success"
	if r.Err != nil {
		outcome = "failure"
	}
	m.attempts.WithLabelValues(r.Chain, r.Attempt.Provider, r.Attempt.Model, outcome).Inc()
	m.duration.WithLabelValues(r.Chain, r.Attempt.Provider).Observe(r.Duration.Seconds())
}
