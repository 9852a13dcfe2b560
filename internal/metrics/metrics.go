// Package metrics holds the Prometheus collectors exposed by labexam serve.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/labexam/pkg/grading"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labexam"

// Metrics groups every collector on a private registry, so tests can create
// as many instances as they like.
type Metrics struct {
	Registry *prometheus.Registry

	// StoreOps counts session store calls by op and result (ok|error|not_found).
	StoreOps *prometheus.CounterVec
	// StoreDuration observes store call latency by op.
	StoreDuration *prometheus.HistogramVec
	// GradingRuns counts finished batch runs by terminal phase.
	GradingRuns *prometheus.CounterVec
	// TaskOutcomes counts per-task grading results by status.
	TaskOutcomes *prometheus.CounterVec
	// HTTPRequests counts control API requests by route and status code.
	HTTPRequests *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		StoreOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Session store operations by op and result.",
			},
			[]string{"op", "result"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Session store operation latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		GradingRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grading",
				Name:      "runs_total",
				Help:      "Batch grading runs by terminal phase.",
			},
			[]string{"phase"},
		),
		TaskOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "grading",
				Name:      "task_results_total",
				Help:      "Per-task grading results by status.",
			},
			[]string{"status"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Control API requests by route and status code.",
			},
			[]string{"route", "code"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.StoreOps,
		m.StoreDuration,
		m.GradingRuns,
		m.TaskOutcomes,
		m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// GradingHooks returns hooks that feed the grading counters. Merge them with
// any front-end hooks.
func (m *Metrics) GradingHooks() grading.Hooks {
	return grading.Hooks{
		OnPhase: func(p grading.Phase, _ string) {
			if p.Terminal() {
				m.GradingRuns.WithLabelValues(string(p)).Inc()
			}
		},
		OnTaskStatus: func(_ string, s grading.TaskStatus) {
			switch s {
			case grading.StatusPassed, grading.StatusFailed, grading.StatusError:
				m.TaskOutcomes.WithLabelValues(string(s)).Inc()
			}
		},
	}
}

// ObserveStore records one store call.
func (m *Metrics) ObserveStore(op, result string, elapsed time.Duration) {
	m.StoreOps.WithLabelValues(op, result).Inc()
	m.StoreDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRequest counts one control API request.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
