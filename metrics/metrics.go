// Package metrics exposes Prometheus instrumentation for the repo-scale
// runner and interactive controller, adapted from the teacher's
// graph/metrics.go (same gauge/histogram/counter shape, renamed to this
// domain's concerns: nodes inflight, queue depth, node latency, LLM calls,
// sub-calls, and retries, all namespaced "rlm_").
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every gauge/histogram/counter this module records.
type Metrics struct {
	NodesInflight  prometheus.Gauge
	QueueDepth     prometheus.Gauge
	NodeLatencyMs  *prometheus.HistogramVec
	LLMCallsTotal  *prometheus.CounterVec
	SubCallsTotal  *prometheus.CounterVec
	RetriesTotal   *prometheus.CounterVec
}

// New registers and returns a Metrics bundle against registry. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		NodesInflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rlm_nodes_inflight",
			Help: "Number of nodes currently in the running state across all runs.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rlm_queue_depth",
			Help: "Number of nodes currently queued across all runs.",
		}),
		NodeLatencyMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rlm_node_latency_ms",
			Help:    "Leaf/split decision-to-terminal latency per node, in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"run_id", "decision", "status"}),
		LLMCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rlm_llm_calls_total",
			Help: "Total root/sub-model completions performed by the interactive engine.",
		}, []string{"provider", "kind"}),
		SubCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rlm_subcalls_total",
			Help: "Total sub-call router invocations, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rlm_retries_total",
			Help: "Total retried operations, by component and reason.",
		}, []string{"component", "reason"}),
	}
}
