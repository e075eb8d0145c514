// Package metrics holds the Prometheus collectors for estimation and the log store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Estimation outcomes.
const (
	OutcomeSkipped   = "skipped"
	OutcomeFinalized = "finalized"
	OutcomeInvalid   = "invalid"
	OutcomeFallback  = "fallback"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	estimations        *prometheus.CounterVec
	estimationDuration *prometheus.HistogramVec
	storeMutations     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		estimations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gainslog",
			Name:      "estimations_total",
			Help:      "Nutrition estimations by variant and outcome.",
		}, []string{"variant", "outcome"}),
		estimationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gainslog",
			Name:      "estimation_duration_seconds",
			Help:      "Latency of calls to the estimation service.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"variant"}),
		storeMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gainslog",
			Name:      "store_mutations_total",
			Help:      "Applied and dropped log store mutations by operation.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.estimations, m.estimationDuration, m.storeMutations)
	}
	return m
}

func (m *Metrics) ObserveEstimation(variant, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.estimations.WithLabelValues(variant, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.estimationDuration.WithLabelValues(variant).Observe(took.Seconds())
	}
}

// StoreMutation records one store primitive; applied is false when the
// mutation was dropped (patch of a missing id, upsert of a deleted id).
func (m *Metrics) StoreMutation(op string, applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "dropped"
	}
	m.storeMutations.WithLabelValues(op, result).Inc()
}
