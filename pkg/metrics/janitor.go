package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JanitorMetrics tracks the background maintenance jobs.
type JanitorMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewJanitorMetrics registers the janitor metrics on the provided registerer.
func NewJanitorMetrics(reg prometheus.Registerer) *JanitorMetrics {
	if reg == nil {
		return &JanitorMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "janitor_job_duration_seconds",
		Help:    "Duration of janitor jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_job_success_total",
		Help: "Successful janitor job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_job_failure_total",
		Help: "Failed janitor job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &JanitorMetrics{duration: duration, success: success, failure: failure}
}

// ObserveDuration records one job run.
func (m *JanitorMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

// IncSuccess counts a successful run of the named job.
func (m *JanitorMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(job).Inc()
}

// IncFailure counts a failed run of the named job.
func (m *JanitorMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(job).Inc()
}
