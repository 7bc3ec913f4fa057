// Package metrics holds the Prometheus instruments of the toolkit. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	RefreshesTotal   *prometheus.CounterVec
	CustomTools      *prometheus.GaugeVec
	HTTPCacheLookups *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolkit_tool_calls_total",
				Help: "Total number of tool invocations",
			},
			[]string{"tool", "kind", "status"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolkit_tool_call_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolkit_registry_refreshes_total",
				Help: "Registry refreshes by outcome",
			},
			[]string{"result"},
		),
		CustomTools: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolkit_custom_tools",
				Help: "Custom tools in the current registry snapshot",
			},
			[]string{"state"},
		),
		HTTPCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolkit_http_cache_lookups_total",
				Help: "Response cache lookups for api tools",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.RefreshesTotal,
		m.CustomTools,
		m.HTTPCacheLookups,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveCall records one finished invocation.
func (m *Metrics) ObserveCall(name, kind string, failed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(name, kind, status).Inc()
	m.ToolCallDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveRefresh records a registry refresh and the resulting snapshot size.
func (m *Metrics) ObserveRefresh(err error, dispatchable, broken int) {
	if m == nil {
		return
	}
	if err != nil {
		m.RefreshesTotal.WithLabelValues("error").Inc()
		return
	}
	m.RefreshesTotal.WithLabelValues("ok").Inc()
	m.CustomTools.WithLabelValues("dispatchable").Set(float64(dispatchable))
	m.CustomTools.WithLabelValues("broken").Set(float64(broken))
}

// ObserveCacheLookup records an api response cache hit, miss or revalidation.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.HTTPCacheLookups.WithLabelValues(result).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
