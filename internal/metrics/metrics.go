// Package metrics exposes scan telemetry as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a private registry so tests can create
// independent instances.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal      *prometheus.CounterVec
	ScanProgress    prometheus.Gauge
	DuplicateGroups prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twinscan_scans_total",
			Help: "Scan runs by terminal status.",
		}, []string{"status"}),
		ScanProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "twinscan_scan_progress",
			Help: "Progress of the running scan (0..1).",
		}),
		DuplicateGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "twinscan_duplicate_groups",
			Help: "Duplicate groups in the current snapshot.",
		}),
	}
	m.registry.MustRegister(m.ScansTotal, m.ScanProgress, m.DuplicateGroups)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
