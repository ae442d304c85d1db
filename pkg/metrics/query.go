package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics tracks latency and outcome of search and recommendation queries.
type QueryMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
}

func NewQueryMetrics(reg prometheus.Registerer) *QueryMetrics {
	if reg == nil {
		return &QueryMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "query_duration_seconds",
		Help:    "Latency of fused queries by engine and shape.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"engine", "shape"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "query_outcomes_total",
		Help: "Fused query results by engine, shape and error code.",
	}, []string{"engine", "shape", "code"})
	reg.MustRegister(duration, outcomes)
	return &QueryMetrics{duration: duration, outcomes: outcomes}
}

// Observe records one query. An empty code means success.
func (q *QueryMetrics) Observe(engine, shape, code string, elapsed time.Duration) {
	if q == nil || q.duration == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	q.duration.WithLabelValues(normalizeLabel(engine), normalizeLabel(shape)).Observe(elapsed.Seconds())
	q.outcomes.WithLabelValues(normalizeLabel(engine), normalizeLabel(shape), code).Inc()
}
