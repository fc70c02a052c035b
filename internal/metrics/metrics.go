// Package metrics counts what the gateway does.
//
// Collector keeps plain counters for the /service/stats snapshot (sections
// of name → count, so two snapshots can be diffed) and mirrors them into
// Prometheus collectors served on /metrics.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache names used as labels and snapshot sections.
const (
	CacheOrigin   = "origin_cache"
	CacheResponse = "response_cache"
)

type promMetrics struct {
	runs            *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runsRejected    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheStores     *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	upstreamRetries *prometheus.CounterVec
	breakerChanges  *prometheus.CounterVec
}

var (
	promInstance *promMetrics
	promOnce     sync.Once
)

func prom() *promMetrics {
	promOnce.Do(func() {
		promInstance = &promMetrics{
			runs: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Name:      "runs_total",
				Help:      "Connector runs by envelope status",
			}, []string{"connector", "status"}),
			runDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "connectorgw",
				Name:      "run_duration_seconds",
				Help:      "Connector run duration",
				Buckets:   prometheus.DefBuckets,
			}, []string{"connector"}),
			runsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Name:      "runs_rejected_total",
				Help:      "Runs rejected because all run slots were busy",
			}, []string{"connector"}),
			cacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by cache and result",
			}, []string{"cache", "result"}),
			cacheStores: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Name:      "cache_stores_total",
				Help:      "Entries written to each cache",
			}, []string{"cache"}),
			upstreamCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Name:      "upstream_calls_total",
				Help:      "Upstream calls by call name and outcome",
			}, []string{"call", "outcome"}),
			upstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "connectorgw",
				Name:      "upstream_call_duration_seconds",
				Help:      "Upstream call duration including retries",
				Buckets:   prometheus.DefBuckets,
			}, []string{"call"}),
			upstreamRetries: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Name:      "upstream_retries_total",
				Help:      "Upstream retry attempts",
			}, []string{"call"}),
			breakerChanges: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "connectorgw",
				Name:      "circuit_breaker_transitions_total",
				Help:      "Upstream circuit breaker state transitions",
			}, []string{"server", "from", "to"}),
		}
	})
	return promInstance
}

// counter names within a section
const (
	keyTotal     = "total"
	keyOK        = "ok"
	keyFailed    = "failed"
	keyRejected  = "rejected"
	keyHits      = "hits"
	keyMisses    = "misses"
	keyStores    = "stores"
	keyDiscarded = "discarded"
	keyClears    = "clears"
	keyCalls     = "calls"
	keyFailures  = "failures"
	keyRetries   = "retries"
	keyBreaker   = "breaker_transitions"
)

// Snapshot is a point-in-time copy of all counters: section → name → count.
type Snapshot map[string]map[string]int64

// Diff returns s minus earlier, section by section. Counters missing from
// earlier count from zero.
func (s Snapshot) Diff(earlier Snapshot) Snapshot {
	out := make(Snapshot, len(s))
	for section, counters := range s {
		out[section] = make(map[string]int64, len(counters))
		for k, v := range counters {
			out[section][k] = v - earlier[section][k]
		}
	}
	return out
}

// Collector records gateway activity. The zero value is not usable; call New.
type Collector struct {
	sections map[string]map[string]*atomic.Int64
}

// New returns a collector with every counter at zero.
func New() *Collector {
	layout := map[string][]string{
		"requests":    {keyTotal, keyOK, keyFailed, keyRejected},
		CacheResponse: {keyHits, keyMisses, keyStores, keyClears},
		CacheOrigin:   {keyHits, keyMisses, keyStores, keyDiscarded, keyClears},
		"upstream":    {keyCalls, keyFailures, keyRetries, keyBreaker},
	}
	c := &Collector{sections: make(map[string]map[string]*atomic.Int64, len(layout))}
	for section, keys := range layout {
		c.sections[section] = make(map[string]*atomic.Int64, len(keys))
		for _, k := range keys {
			c.sections[section][k] = new(atomic.Int64)
		}
	}
	prom()
	return c
}

func (c *Collector) add(section, key string, n int64) {
	c.sections[section][key].Add(n)
}

// RunFinished records a completed run and its envelope status.
func (c *Collector) RunFinished(connector, status string, d time.Duration) {
	c.add("requests", keyTotal, 1)
	if status == "ok" {
		c.add("requests", keyOK, 1)
	} else {
		c.add("requests", keyFailed, 1)
	}
	prom().runs.WithLabelValues(connector, status).Inc()
	prom().runDuration.WithLabelValues(connector).Observe(d.Seconds())
}

// RunRejected records a run turned away by the run limiter.
func (c *Collector) RunRejected(connector string) {
	c.add("requests", keyTotal, 1)
	c.add("requests", keyRejected, 1)
	prom().runsRejected.WithLabelValues(connector).Inc()
}

// CacheHit records a cache hit.
func (c *Collector) CacheHit(cache string) {
	c.add(cache, keyHits, 1)
	prom().cacheLookups.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a cache miss.
func (c *Collector) CacheMiss(cache string) {
	c.add(cache, keyMisses, 1)
	prom().cacheLookups.WithLabelValues(cache, "miss").Inc()
}

// CacheStored records n entries written to a cache.
func (c *Collector) CacheStored(cache string, n int) {
	c.add(cache, keyStores, int64(n))
	prom().cacheStores.WithLabelValues(cache).Add(float64(n))
}

// OriginDiscarded records staged origin entries dropped after a failed run.
func (c *Collector) OriginDiscarded(n int) {
	c.add(CacheOrigin, keyDiscarded, int64(n))
}

// CacheCleared records an explicit clean of a cache.
func (c *Collector) CacheCleared(cache string) {
	c.add(cache, keyClears, 1)
}

// UpstreamCall records one upstream call (after retries).
func (c *Collector) UpstreamCall(call string, d time.Duration, err error) {
	c.add("upstream", keyCalls, 1)
	outcome := "ok"
	if err != nil {
		c.add("upstream", keyFailures, 1)
		outcome = "error"
	}
	prom().upstreamCalls.WithLabelValues(call, outcome).Inc()
	prom().upstreamLatency.WithLabelValues(call).Observe(d.Seconds())
}

// UpstreamRetry records a retry attempt.
func (c *Collector) UpstreamRetry(call string) {
	c.add("upstream", keyRetries, 1)
	prom().upstreamRetries.WithLabelValues(call).Inc()
}

// BreakerStateChange records a circuit breaker transition.
func (c *Collector) BreakerStateChange(server, from, to string) {
	c.add("upstream", keyBreaker, 1)
	prom().breakerChanges.WithLabelValues(server, from, to).Inc()
}

// Snapshot copies the current counters.
func (c *Collector) Snapshot() Snapshot {
	out := make(Snapshot, len(c.sections))
	for section, counters := range c.sections {
		out[section] = make(map[string]int64, len(counters))
		for k, v := range counters {
			out[section][k] = v.Load()
		}
	}
	return out
}
