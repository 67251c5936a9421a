// Package metrics holds the Prometheus collectors of the solver and the job
// server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nlpbridge"

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	evaluations *prometheus.HistogramVec
	duration    *prometheus.HistogramVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	activeJobs  prometheus.Gauge
	jobs        *prometheus.CounterVec
}

// New registers the collectors with reg. Use prometheus.DefaultRegisterer
// for the process-wide registry and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "runs_total",
			Help:      "Optimization runs by algorithm and termination status.",
		}, []string{"algorithm", "status"}),
		evaluations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "evaluations",
			Help:      "Objective evaluations per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"algorithm"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "run_duration_seconds",
			Help:      "Wall time of optimization runs.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"algorithm"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evalcache",
			Name:      "hits_total",
			Help:      "Callback queries answered from the evaluation cache.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evalcache",
			Name:      "misses_total",
			Help:      "Callback queries that required an evaluation.",
		}),
		activeJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_jobs",
			Help:      "Solve jobs currently running.",
		}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "jobs_total",
			Help:      "Finished solve jobs by state.",
		}, []string{"state"}),
	}
}

// Run is the summary of one optimization run.
type Run struct {
	Algorithm   string
	Status      string
	Evaluations int
	Hits        int
	Misses      int
	Duration    time.Duration
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(r Run) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(r.Algorithm, r.Status).Inc()
	m.evaluations.WithLabelValues(r.Algorithm).Observe(float64(r.Evaluations))
	m.duration.WithLabelValues(r.Algorithm).Observe(r.Duration.Seconds())
	m.cacheHits.Add(float64(r.Hits))
	m.cacheMisses.Add(float64(r.Misses))
}

// JobStarted marks a job as running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

// JobFinished marks a job as done in the given state.
func (m *Metrics) JobFinished(state string) {
	if m == nil {
		return
	}
	m.activeJobs.Dec()
	m.jobs.WithLabelValues(state).Inc()
}
