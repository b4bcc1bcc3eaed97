// Package metrics exposes control-plane counters on a prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Metrics holds the control-plane instrumentation.
type Metrics struct {
	RouterCacheHits    prometheus.Counter
	RouterCacheMisses  prometheus.Counter
	ConnectionsOpened  prometheus.Counter
	ConnectionsEvicted prometheus.Counter
	GateDenials        *prometheus.CounterVec

	FlushRuns       prometheus.Counter
	FlushFailures   prometheus.Counter
	SamplesFlushed  prometheus.Counter
	BufferedTenants prometheus.Gauge

	SweepTransitions *prometheus.CounterVec
	SweepFailures    prometheus.Counter
	AlertsRaised     *prometheus.CounterVec
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RouterCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantplane_router_cache_hits_total",
			Help: "Connection handle cache hits.",
		}),
		RouterCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantplane_router_cache_misses_total",
			Help: "Connection handle cache misses.",
		}),
		ConnectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantplane_connections_opened_total",
			Help: "Physical tenant connections established.",
		}),
		ConnectionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantplane_connections_evicted_total",
			Help: "Connection handles evicted from the cache.",
		}),
		GateDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantplane_gate_denials_total",
			Help: "Subscription gate denials by reason.",
		}, []string{"reason"}),
		FlushRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantplane_usage_flush_runs_total",
			Help: "Usage buffer flush attempts.",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantplane_usage_flush_failures_total",
			Help: "Usage buffer flushes that failed and were retained for retry.",
		}),
		SamplesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantplane_usage_samples_flushed_total",
			Help: "Per-tenant-per-day rows written by the flusher.",
		}),
		BufferedTenants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantplane_usage_buffered_tenants",
			Help: "Dirty buffer entries awaiting flush.",
		}),
		SweepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantplane_sweep_transitions_total",
			Help: "Lifecycle transitions applied by the daily sweep.",
		}, []string{"transition"}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantplane_sweep_failures_total",
			Help: "Per-tenant sweep failures.",
		}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantplane_usage_alerts_raised_total",
			Help: "Usage alerts created by level.",
		}, []string{"level"}),
	}

	reg.MustRegister(
		m.RouterCacheHits,
		m.RouterCacheMisses,
		m.ConnectionsOpened,
		m.ConnectionsEvicted,
		m.GateDenials,
		m.FlushRuns,
		m.FlushFailures,
		m.SamplesFlushed,
		m.BufferedTenants,
		m.SweepTransitions,
		m.SweepFailures,
		m.AlertsRaised,
	)
	return m
}
