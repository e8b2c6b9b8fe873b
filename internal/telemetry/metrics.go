// Package telemetry provides observability primitives for the Airlock gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveRequests    prometheus.Gauge
	OriginDuration    *prometheus.HistogramVec
	OriginErrors      *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	StrategyResults   *prometheus.CounterVec
	FillQueueLength   prometheus.Gauge
	FillDrops         prometheus.Counter
	LifecycleState    prometheus.Gauge
	GenerationEntries prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airlock",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "airlock",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airlock",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		OriginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "airlock",
			Name:                            "origin_duration_seconds",
			Help:                            "Origin call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"operation"}),

		OriginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airlock",
			Name:      "origin_errors_total",
			Help:      "Total origin transport failures.",
		}, []string{"operation"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airlock",
			Name:      "cache_hits_total",
			Help:      "Total cache hits across hot and durable layers.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airlock",
			Name:      "cache_misses_total",
			Help:      "Total lookups that found no stored response.",
		}),

		StrategyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airlock",
			Name:      "strategy_results_total",
			Help:      "Strategy outcomes by traffic class and disposition.",
		}, []string{"class", "disposition"}),

		FillQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airlock",
			Name:      "fill_queue_length",
			Help:      "Current number of queued cache-fill writes.",
		}),

		FillDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airlock",
			Name:      "fill_drops_total",
			Help:      "Cache-fill writes dropped because the queue was full.",
		}),

		LifecycleState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airlock",
			Name:      "lifecycle_state",
			Help:      "Current lifecycle state as an ordinal (0=uninstalled through 4=active).",
		}),

		GenerationEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airlock",
			Name:      "generation_entries",
			Help:      "Number of responses stored in the serving generation.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.OriginDuration,
		m.OriginErrors,
		m.CacheHits,
		m.CacheMisses,
		m.StrategyResults,
		m.FillQueueLength,
		m.FillDrops,
		m.LifecycleState,
		m.GenerationEntries,
	)

	return m
}
