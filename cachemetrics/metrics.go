// Package cachemetrics exports LocalCache and CachingMap counters as
// prometheus collectors, so a process embedding the cache can surface
// hit ratios, eviction pressure and invalidation traffic on its
// existing /metrics endpoint.
package cachemetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Krishna8167/coherentcache/cachingmap"
	"github.com/Krishna8167/coherentcache/localcache"
)

// LocalCacheCollector collects a localcache.Cache's stats under the
// given cache name label.
type LocalCacheCollector[K comparable, V any] struct {
	cache *localcache.Cache[K, V]

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	units     *prometheus.Desc
	size      *prometheus.Desc
}

// NewLocalCacheCollector builds a collector for c named name.
func NewLocalCacheCollector[K comparable, V any](c *localcache.Cache[K, V], name string) *LocalCacheCollector[K, V] {
	labels := prometheus.Labels{"cache": name}
	return &LocalCacheCollector[K, V]{
		cache: c,
		hits: prometheus.NewDesc("localcache_hits_total",
			"Lookups served from the cache.", nil, labels),
		misses: prometheus.NewDesc("localcache_misses_total",
			"Lookups that found no live entry.", nil, labels),
		evictions: prometheus.NewDesc("localcache_evictions_total",
			"Entries evicted to enforce the unit bound.", nil, labels),
		units: prometheus.NewDesc("localcache_units",
			"Current total unit cost across entries.", nil, labels),
		size: prometheus.NewDesc("localcache_entries",
			"Current entry count.", nil, labels),
	}
}

func (lc *LocalCacheCollector[K, V]) Describe(ch chan<- *prometheus.Desc) {
	ch <- lc.hits
	ch <- lc.misses
	ch <- lc.evictions
	ch <- lc.units
	ch <- lc.size
}

func (lc *LocalCacheCollector[K, V]) Collect(ch chan<- prometheus.Metric) {
	s := lc.cache.Stats()
	ch <- prometheus.MustNewConstMetric(lc.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(lc.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(lc.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(lc.units, prometheus.GaugeValue, float64(lc.cache.Units()))
	ch <- prometheus.MustNewConstMetric(lc.size, prometheus.GaugeValue, float64(lc.cache.Size()))
}

var _ prometheus.Collector = (*LocalCacheCollector[string, int])(nil)

// CachingMapCollector collects a CachingMap's front-tier and
// invalidation counters under the given cache name label.
type CachingMapCollector[K comparable, V any] struct {
	cm *cachingmap.CachingMap[K, V]

	hits          *prometheus.Desc
	misses        *prometheus.Desc
	invHits       *prometheus.Desc
	invMisses     *prometheus.Desc
	registrations *prometheus.Desc
}

// NewCachingMapCollector builds a collector for cm named name.
func NewCachingMapCollector[K comparable, V any](cm *cachingmap.CachingMap[K, V], name string) *CachingMapCollector[K, V] {
	labels := prometheus.Labels{"cache": name}
	return &CachingMapCollector[K, V]{
		cm: cm,
		hits: prometheus.NewDesc("cachingmap_front_hits_total",
			"Reads served from the front tier.", nil, labels),
		misses: prometheus.NewDesc("cachingmap_front_misses_total",
			"Reads that went through to the back tier.", nil, labels),
		invHits: prometheus.NewDesc("cachingmap_invalidation_hits_total",
			"Back events that removed a front entry.", nil, labels),
		invMisses: prometheus.NewDesc("cachingmap_invalidation_misses_total",
			"Back events whose key the front no longer held.", nil, labels),
		registrations: prometheus.NewDesc("cachingmap_key_listener_registrations_total",
			"Per-key invalidation listeners installed on the back.", nil, labels),
	}
}

func (c *CachingMapCollector[K, V]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.invHits
	ch <- c.invMisses
	ch <- c.registrations
}

func (c *CachingMapCollector[K, V]) Collect(ch chan<- prometheus.Metric) {
	s := c.cm.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.invHits, prometheus.CounterValue, float64(s.InvalidationHits))
	ch <- prometheus.MustNewConstMetric(c.invMisses, prometheus.CounterValue, float64(s.InvalidationMisses))
	ch <- prometheus.MustNewConstMetric(c.registrations, prometheus.CounterValue, float64(s.ListenerRegistrations))
}

var _ prometheus.Collector = (*CachingMapCollector[string, int])(nil)
