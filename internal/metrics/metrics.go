// Package metrics owns the Prometheus registry of the archive service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voeventdb"

type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	IngestedPackets *prometheus.CounterVec
	ArchiveRuns     *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
}

// New builds a fresh registry with the service metrics plus Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		IngestedPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "packets_total",
			Help:      "Single packets offered for ingest, by source and outcome.",
		}, []string{"source", "outcome"}),
		ArchiveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "archive_packets_total",
			Help:      "Packets handled by archive loads, by result.",
		}, []string{"result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Aggregate cache lookups, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.IngestedPackets,
		m.ArchiveRuns,
		m.CacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveIngest counts one single-packet ingest. A nil receiver is a no-op so
// callers need not check whether metrics are enabled.
func (m *Metrics) ObserveIngest(source, outcome string) {
	if m == nil {
		return
	}
	m.IngestedPackets.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveArchive(loaded, skipped int) {
	if m == nil {
		return
	}
	m.ArchiveRuns.WithLabelValues("loaded").Add(float64(loaded))
	m.ArchiveRuns.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
