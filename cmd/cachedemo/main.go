// Command cachedemo wires the full two-tier stack together: a bounded
// LocalCache front over an in-memory observable back, composed by a
// CachingMap under the present invalidation strategy, with zap logging
// and prometheus metrics exposed on :8080/metrics.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Krishna8167/coherentcache/cachemetrics"
	"github.com/Krishna8167/coherentcache/cachingmap"
	"github.com/Krishna8167/coherentcache/internal/safemap"
	"github.com/Krishna8167/coherentcache/localcache"
	"github.com/Krishna8167/coherentcache/namedcache"
)

func main() {
	zl, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer zl.Sync()
	log := zapr.NewLogger(zl)

	back := namedcache.NewInMemoryCache[string, string](safemap.StringHash)

	front := localcache.New[string, string](
		localcache.WithHighUnits[string, string](100),
		localcache.WithEvictionPolicy[string, string](localcache.LRU),
		localcache.WithExpiry[string, string](time.Minute),
		localcache.WithLogger[string, string](log.WithName("front")),
	)
	defer front.Stop()

	near := cachingmap.New[string, string](front, back,
		cachingmap.WithStrategy[string, string](cachingmap.StrategyPresent),
		cachingmap.WithLogger[string, string](log.WithName("near")),
	)
	defer near.Release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		cachemetrics.NewLocalCacheCollector(front, "front"),
		cachemetrics.NewCachingMapCollector(near, "near"),
	)
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(":8080", nil); err != nil {
			log.Error(err, "metrics server stopped")
		}
	}()

	log.Info("seeding back tier")
	for i := 0; i < 10; i++ {
		if err := near.Put(fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i)); err != nil {
			log.Error(err, "put failed")
			os.Exit(1)
		}
	}

	log.Info("reading through the front tier twice")
	for pass := 1; pass <= 2; pass++ {
		for i := 0; i < 10; i++ {
			k := fmt.Sprintf("key-%d", i)
			if _, ok, err := near.Get(k); err != nil || !ok {
				log.Error(err, "get failed", "key", k)
				os.Exit(1)
			}
		}
	}

	log.Info("mutating the back directly to trigger invalidation")
	back.Put("key-3", "externally-changed")
	if v, _, _ := near.Get("key-3"); v != "externally-changed" {
		log.Info("unexpected value after invalidation", "value", v)
		os.Exit(1)
	}

	s := near.Stats()
	log.Info("done",
		"frontHits", s.Hits,
		"frontMisses", s.Misses,
		"invalidationHits", s.InvalidationHits,
		"keyListeners", s.ListenerRegistrations,
	)
}
