package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records outcomes for background batch jobs such as the graph reconciler.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	dead     *prometheus.CounterVec
}

// NewJobMetrics registers the job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of background job batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Items processed successfully by background jobs.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Items that failed and will be retried.",
	}, []string{"job"})
	dead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_dead",
		Help: "Items that exhausted their attempts and need manual reconciliation.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure, dead)
	return &JobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		dead:     dead,
	}
}

// ObserveDuration records the duration for the named job.
func (j *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if j == nil || j.duration == nil {
		return
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// AddSuccess adds n successful items for the named job.
func (j *JobMetrics) AddSuccess(job string, n int) {
	if j == nil || j.success == nil || n <= 0 {
		return
	}
	j.success.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

// AddFailure adds n failed items for the named job.
func (j *JobMetrics) AddFailure(job string, n int) {
	if j == nil || j.failure == nil || n <= 0 {
		return
	}
	j.failure.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

// AddDead adds n items moved to the dead state for the named job.
func (j *JobMetrics) AddDead(job string, n int) {
	if j == nil || j.dead == nil || n <= 0 {
		return
	}
	j.dead.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
