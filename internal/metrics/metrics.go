// Package metrics holds the Prometheus collectors for indexing, exploration
// tools and the agent loop. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	IndexJobs        *prometheus.CounterVec
	IndexDuration    prometheus.Histogram
	ToolCalls        *prometheus.CounterVec
	PlannerFallbacks prometheus.Counter
	SynthFallbacks   prometheus.Counter
	AgentSteps       prometheus.Histogram
	ActiveJobs       prometheus.Gauge
}

// New registers every collector on a fresh registry so tests and multiple
// servers in one process never collide on the default registerer.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		IndexJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repotutor_index_jobs_total",
			Help: "Indexing jobs by final state",
		}, []string{"state"}),
		IndexDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "repotutor_index_duration_seconds",
			Help:    "Wall time of indexing jobs",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "repotutor_tool_calls_total",
			Help: "Exploration tool invocations by tool and outcome",
		}, []string{"tool", "outcome"}),
		PlannerFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "repotutor_planner_fallbacks_total",
			Help: "Agent steps that used the deterministic fallback decision",
		}),
		SynthFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "repotutor_synthesis_fallbacks_total",
			Help: "Answers built from the templated fallback",
		}),
		AgentSteps: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "repotutor_agent_steps",
			Help:    "Steps used per answered question",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "repotutor_index_jobs_active",
			Help: "Indexing jobs currently running",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

func (m *Metrics) JobFinished(state string, took time.Duration) {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
	m.IndexJobs.WithLabelValues(state).Inc()
	m.IndexDuration.Observe(took.Seconds())
}

func (m *Metrics) ToolCall(tool string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) PlannerFallback() {
	if m == nil {
		return
	}
	m.PlannerFallbacks.Inc()
}

func (m *Metrics) SynthesisFallback() {
	if m == nil {
		return
	}
	m.SynthFallbacks.Inc()
}

func (m *Metrics) Answered(steps int) {
	if m == nil {
		return
	}
	m.AgentSteps.Observe(float64(steps))
}
