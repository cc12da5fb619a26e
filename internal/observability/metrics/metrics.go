// Package metrics exposes Prometheus collectors for forwarded calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coreguard"

// UnsupportedMethodLabel replaces method names that were rejected by the allowlist so
// callers cannot blow up label cardinality.
const UnsupportedMethodLabel = "unsupported"

// Metrics owns a private registry; a nil *Metrics is valid and records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	calls     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	rewrites  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Inbound HTTP requests by body shape.",
	}, []string{"kind"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_total",
		Help:      "Calls processed, by method and outcome.",
	}, []string{"method", "outcome"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_duration_seconds",
		Help:      "Duration of upstream RPC calls in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	rewrites := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rescan_rewrites_total",
		Help:      "Calls whose rescan parameter was forced to false.",
	})
	registry.MustRegister(
		requests, calls, durations, rewrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:  registry,
		requests:  requests,
		calls:     calls,
		durations: durations,
		rewrites:  rewrites,
	}
}

func (m *Metrics) ObserveRequest(kind string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveCall(method, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveUpstream(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.durations.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ObserveRewrite() {
	if m == nil {
		return
	}
	m.rewrites.Inc()
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
