// Package metrics holds the scanner's prometheus collectors on a private
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	// DevicesScanned counts devices and hops by family and final state.
	DevicesScanned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batchscan_devices_scanned_total",
		Help: "Devices and tunnel hops scanned.",
	}, []string{"family", "state"})

	CommandsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batchscan_commands_sent_total",
		Help: "Commands sent, by outcome.",
	}, []string{"family", "success"})

	Hops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batchscan_hops_total",
		Help: "Tunnel hop attempts into subordinate devices.",
	}, []string{"result"})

	Atoms = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batchscan_atoms_total",
		Help: "Atoms extracted, by section.",
	}, []string{"section"})

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchscan_scan_duration_seconds",
		Help:    "Wall time of one scan task.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ActiveScans = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batchscan_active_scans",
		Help: "Scan tasks currently running.",
	})
)

func init() {
	registry.MustRegister(
		DevicesScanned, CommandsSent, Hops, Atoms, ScanDuration, ActiveScans,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry exposes the registry for tests and embedding.
func Registry() *prometheus.Registry { return registry }

// Handler serves the registry in the exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
