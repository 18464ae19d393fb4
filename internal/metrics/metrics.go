package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics records authentication and secret store activity. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	authAttempts *prometheus.CounterVec
	authDuration *prometheus.HistogramVec
	secretOps    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		authAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lms_auth_attempts_total",
				Help: "Authentication attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		authDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lms_auth_duration_seconds",
				Help:    "Duration of authentication operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"operation"},
		),
		secretOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lms_secret_operations_total",
				Help: "Secret store operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
}

// ObserveAuth records one authentication attempt.
func (m *Metrics) ObserveAuth(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(operation, outcome).Inc()
	m.authDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveSecret records one secret store operation.
func (m *Metrics) ObserveSecret(operation, outcome string) {
	if m == nil {
		return
	}
	m.secretOps.WithLabelValues(operation, outcome).Inc()
}
