// Package metrics exposes Prometheus collectors for the job lifecycle.
// All methods are safe on a nil *Metrics so callers need no guards.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "content_agent"

type Metrics struct {
	jobsCreated    prometheus.Counter
	jobsFinished   *prometheus.CounterVec
	agentDuration  *prometheus.HistogramVec
	streamsOpen    prometheus.Gauge
	requeued       prometheus.Counter
	cleanupDeleted prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Content jobs accepted.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Content jobs that reached a terminal status.",
		}, []string{"status"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_duration_seconds",
			Help:      "Wall time of a single agent step.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"agent", "status"}),
		streamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_streams_open",
			Help:      "Open Server-Sent-Events status streams.",
		}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_requeued_total",
			Help:      "Stale queue claims moved back to the queue.",
		}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_total",
			Help:      "Job records removed by age.",
		}),
	}
	reg.MustRegister(m.jobsCreated, m.jobsFinished, m.agentDuration, m.streamsOpen, m.requeued, m.cleanupDeleted)
	return m
}

func (m *Metrics) JobCreated() {
	if m == nil {
		return
	}
	m.jobsCreated.Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) AgentFinished(agentID, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.agentDuration.WithLabelValues(agentID, status).Observe(d.Seconds())
}

// StreamOpened increments the open-stream gauge and returns the matching
// decrement.
func (m *Metrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.streamsOpen.Inc()
	return m.streamsOpen.Dec
}

func (m *Metrics) Requeued(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.requeued.Add(float64(n))
}

func (m *Metrics) CleanupDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupDeleted.Add(float64(n))
}
