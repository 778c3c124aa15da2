package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DownloadEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bilibatch",
			Name:      "download_events_total",
			Help:      "Count of aria2 download events observed by the tracker.",
		},
		[]string{"type"},
	)

	Aria2RPCErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bilibatch",
			Name:      "aria2_rpc_errors_total",
			Help:      "Errors from aria2 JSON-RPC calls.",
		},
		[]string{"method"},
	)

	Aria2RPCLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bilibatch",
			Name:      "aria2_rpc_latency_seconds",
			Help:      "Latency of aria2 JSON-RPC calls.",
		},
		[]string{"method"},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bilibatch",
			Name:      "upstream_errors_total",
			Help:      "Failed upstream page and API requests.",
		},
		[]string{"host"},
	)

	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bilibatch",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of upstream page and API requests.",
		},
		[]string{"host"},
	)

	ItemsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bilibatch",
			Name:      "items_resolved_total",
			Help:      "Items resolved into fragment models, by extractor.",
		},
		[]string{"extractor"},
	)

	QualityDowngrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bilibatch",
			Name:      "quality_downgrades_total",
			Help:      "Items granted a different quality than requested.",
		},
		[]string{"extractor"},
	)

	TrackedDownloads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bilibatch",
			Name:      "tracked_downloads",
			Help:      "Number of dispatched aria2 downloads still being tracked.",
		},
	)
)

// Register registers the bilibatch metrics into the default registry.
// Only the first call has an effect.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DownloadEvents, Aria2RPCErrors, Aria2RPCLatency, UpstreamErrors,
			UpstreamLatency, ItemsResolved, QualityDowngrades, TrackedDownloads)
	})
}

var registerOnce sync.Once
