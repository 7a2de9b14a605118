package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PhaseTotal counts orchestration phases by outcome
	PhaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoacdc_phase_total",
			Help: "Total number of orchestration phases run",
		},
		[]string{"phase", "result"},
	)

	// PhaseDuration tracks how long each orchestration phase takes
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoacdc_phase_duration_seconds",
			Help:    "Orchestration phase duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	// FallbackTotal counts random tier-1 fallbacks and forced remote reads
	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoacdc_site_fallback_total",
			Help: "Total number of site selections that fell back or forced remote reads",
		},
		[]string{"kind"},
	)

	// HTTPCallsTotal tracks calls to remote services
	HTTPCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoacdc_http_calls_total",
			Help: "Total number of HTTP calls to remote services",
		},
		[]string{"service", "method"},
	)

	// HTTPErrorsTotal tracks failed calls to remote services
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoacdc_http_errors_total",
			Help: "Total number of failed HTTP calls",
		},
		[]string{"service", "error_type"},
	)

	// HTTPLatency tracks remote call latency
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoacdc_http_latency_seconds",
			Help:    "HTTP call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	// SiteCacheTotal counts site catalog cache lookups
	SiteCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoacdc_site_cache_total",
			Help: "Site catalog cache lookups by result",
		},
		[]string{"result"},
	)
)

// WriteTextfile dumps the default registry for the node exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
