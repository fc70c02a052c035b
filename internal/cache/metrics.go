package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// cacheMetrics holds Prometheus metrics for cache operations, labelled by
// cache name and backend.
type cacheMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	size      *prometheus.GaugeVec
	errors    *prometheus.CounterVec
}

var (
	cacheMetricsInstance *cacheMetrics
	cacheMetricsOnce     sync.Once
)

func metrics() *cacheMetrics {
	cacheMetricsOnce.Do(func() {
		labels := []string{"cache", "backend"}
		cacheMetricsInstance = &cacheMetrics{
			hits: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			}, labels),
			misses: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			}, labels),
			evictions: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total number of cache evictions",
			}, labels),
			size: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "connectorgw",
				Subsystem: "cache",
				Name:      "size",
				Help:      "Current number of items in cache",
			}, labels),
			errors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of cache backend errors",
			}, []string{"cache", "backend", "operation"}),
		}
	})
	return cacheMetricsInstance
}

// init pre-creates label combinations so the series appear on /metrics
// before the first operation.
func (m *cacheMetrics) init(name, backend string) {
	m.hits.WithLabelValues(name, backend)
	m.misses.WithLabelValues(name, backend)
	m.evictions.WithLabelValues(name, backend)
	m.size.WithLabelValues(name, backend)
}
