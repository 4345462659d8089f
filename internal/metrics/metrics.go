package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors the engine and server update.
type Metrics struct {
	Registry           *prometheus.Registry
	ActionsTotal       *prometheus.CounterVec
	ReversalsTotal     *prometheus.CounterVec
	CompletionsTotal   *prometheus.CounterVec
	SkipTokensConsumed prometheus.Counter
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choreline",
			Name:      "actions_total",
			Help:      "Action log entries written, by action kind.",
		}, []string{"action"}),
		ReversalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choreline",
			Name:      "reversals_total",
			Help:      "Undo attempts, by action kind and result.",
		}, []string{"action", "result"}),
		CompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choreline",
			Name:      "completions_total",
			Help:      "Assignments marked done, by task type.",
		}, []string{"task_type"}),
		SkipTokensConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "choreline",
			Name:      "skip_tokens_consumed_total",
			Help:      "Skip tokens spent while advancing rotations.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choreline",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method and status.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "choreline",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(
		m.ActionsTotal,
		m.ReversalsTotal,
		m.CompletionsTotal,
		m.SkipTokensConsumed,
		m.HTTPRequestsTotal,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Action counts one action log entry. Safe on a nil receiver.
func (m *Metrics) Action(kind string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(kind).Inc()
}

// Reversal counts one undo attempt. Safe on a nil receiver.
func (m *Metrics) Reversal(kind, result string) {
	if m == nil {
		return
	}
	m.ReversalsTotal.WithLabelValues(kind, result).Inc()
}

// Completion counts one mark-done and the tokens it spent. Safe on a nil receiver.
func (m *Metrics) Completion(taskType string, tokens int) {
	if m == nil {
		return
	}
	m.CompletionsTotal.WithLabelValues(taskType).Inc()
	if tokens > 0 {
		m.SkipTokensConsumed.Add(float64(tokens))
	}
}
