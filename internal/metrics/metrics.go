// Package metrics defines the Prometheus collectors shared by the API
// server and the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reviewrepl"

// Metrics holds every collector the job subsystem reports.
type Metrics struct {
	JobsSubmitted   *prometheus.CounterVec
	JobsClaimed     *prometheus.CounterVec
	ClaimConflicts  prometheus.Counter
	JobsCompleted   *prometheus.CounterVec
	JobsFailed      *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec
	JobsReaped      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Panics if they are already registered, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Jobs accepted by the submission endpoint.",
		}, []string{"job_type"}),
		JobsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "claimed_total",
			Help:      "Jobs claimed by this worker.",
		}, []string{"job_type"}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "claim_conflicts_total",
			Help:      "Claims lost to another worker.",
		}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Jobs finalized as completed.",
		}, []string{"job_type"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Jobs finalized as failed.",
		}, []string{"job_type"}),
		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "handler_duration_seconds",
			Help:      "Time spent in job handlers.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job_type"}),
		JobsReaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "reaped_total",
			Help:      "Processing jobs released after their lease expired.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.JobsSubmitted,
		m.JobsClaimed,
		m.ClaimConflicts,
		m.JobsCompleted,
		m.JobsFailed,
		m.HandlerDuration,
		m.JobsReaped,
	)
	return m
}

// Discard returns collectors registered with a private registry, for
// callers and tests that do not export metrics.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}
