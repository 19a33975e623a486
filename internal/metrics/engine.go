// Package metrics defines the Prometheus collectors for the engine host,
// the index fetcher and the index server.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "postindex"

// Engine host Prometheus metrics.
var (
	HostRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_requests_total",
			Help:      "Total number of requests handled by the engine host",
		},
		[]string{"type", "status"}, // status: "ok" / error code
	)

	HostRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "host_request_duration_seconds",
			Help:      "Engine host request duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"type"},
	)

	HostFatalTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_fatal_total",
			Help:      "Total number of worker-global fatal events",
		},
	)

	IndexLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_loads_total",
			Help:      "Index loads by capability and outcome",
		},
		[]string{"capability", "status"},
	)

	IndexFetchBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_fetch_bytes",
			Help:      "Size of fetched index blobs in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"capability"},
	)

	IndexReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_ready",
			Help:      "Whether the capability's engine is ready (1) or not (0)",
		},
		[]string{"capability"},
	)
)

var registerHostOnce sync.Once

// RegisterHostMetrics registers the engine host metrics with the default
// registry. Safe to call more than once.
func RegisterHostMetrics() {
	registerHostOnce.Do(func() {
		prometheus.MustRegister(HostRequestsTotal)
		prometheus.MustRegister(HostRequestDuration)
		prometheus.MustRegister(HostFatalTotal)
		prometheus.MustRegister(IndexLoadsTotal)
		prometheus.MustRegister(IndexFetchBytes)
		prometheus.MustRegister(IndexReady)
	})
}
