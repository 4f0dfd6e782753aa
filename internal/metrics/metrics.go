// Package metrics exposes Prometheus counters, gauges, and histograms for the
// generation pipeline. All recording methods are safe on a nil *Metrics so
// components can run without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry.
type Metrics struct {
	registry         *prometheus.Registry
	jobsSubmitted    prometheus.Counter
	jobOutcomes      *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	attempts         *prometheus.CounterVec
	shotScore        prometheus.Histogram
	scorerFallbacks  prometheus.Counter
	assemblyOutcomes *prometheus.CounterVec
	activeScenes     prometheus.Gauge
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
}

// New creates and registers the pipeline metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenegen_jobs_submitted_total",
			Help: "Total number of generation jobs accepted by the job queue",
		}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenegen_job_outcomes_total",
			Help: "Generation jobs by terminal outcome",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scenegen_queue_depth",
			Help: "Generation jobs waiting for a backend slot",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenegen_attempts_total",
			Help: "Shot generation attempts by outcome",
		}, []string{"outcome"}),
		shotScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scenegen_shot_score",
			Help:    "Quality score of accepted shots",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		scorerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenegen_scorer_fallbacks_total",
			Help: "Scores replaced by the configured fallback because the scorer failed",
		}),
		assemblyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scenegen_assembly_outcomes_total",
			Help: "Scene assemblies by final state",
		}, []string{"state"}),
		activeScenes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scenegen_active_scenes",
			Help: "Scenes currently generating or assembling",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenegen_http_requests_total",
			Help: "Total number of HTTP API requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scenegen_http_errors_total",
			Help: "Total number of HTTP API responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.jobsSubmitted,
		m.jobOutcomes,
		m.queueDepth,
		m.attempts,
		m.shotScore,
		m.scorerFallbacks,
		m.assemblyOutcomes,
		m.activeScenes,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncJobsSubmitted counts a job accepted by the queue.
func (m *Metrics) IncJobsSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
}

// ObserveJobOutcome counts a terminal job outcome (completed, failed, timeout, canceled).
func (m *Metrics) ObserveJobOutcome(outcome string) {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues(outcome).Inc()
}

// SetQueueDepth sets the number of waiting jobs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveAttempt counts a finished attempt (passed, below_threshold, hard_failure).
func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// ObserveShotScore records the score of an accepted shot.
func (m *Metrics) ObserveShotScore(score float64) {
	if m == nil {
		return
	}
	m.shotScore.Observe(score)
}

// IncScorerFallback counts a fallback score substitution.
func (m *Metrics) IncScorerFallback() {
	if m == nil {
		return
	}
	m.scorerFallbacks.Inc()
}

// ObserveAssembly counts an assembly by final state.
func (m *Metrics) ObserveAssembly(state string) {
	if m == nil {
		return
	}
	m.assemblyOutcomes.WithLabelValues(state).Inc()
}

// SetActiveScenes sets the active scenes gauge.
func (m *Metrics) SetActiveScenes(n int) {
	if m == nil {
		return
	}
	m.activeScenes.Set(float64(n))
}

// IncRequests increments the HTTP request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
