package cachemetrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krishna8167/coherentcache/cachingmap"
	"github.com/Krishna8167/coherentcache/internal/safemap"
	"github.com/Krishna8167/coherentcache/localcache"
	"github.com/Krishna8167/coherentcache/namedcache"
)

func TestLocalCacheCollector(t *testing.T) {
	c := localcache.New[string, string](localcache.WithCleanupInterval[string, string](0))
	defer c.Stop()
	c.Put("a", "1")
	c.Get("a")
	c.Get("missing")

	col := NewLocalCacheCollector(c, "test")
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(col))

	assert.Equal(t, 5, testutil.CollectAndCount(col))

	expected := strings.NewReader(`
# HELP localcache_hits_total Lookups served from the cache.
# TYPE localcache_hits_total counter
localcache_hits_total{cache="test"} 1
# HELP localcache_misses_total Lookups that found no live entry.
# TYPE localcache_misses_total counter
localcache_misses_total{cache="test"} 1
`)
	assert.NoError(t, testutil.CollectAndCompare(col, expected,
		"localcache_hits_total", "localcache_misses_total"))
}

func TestCachingMapCollector(t *testing.T) {
	back := namedcache.NewInMemoryCache[string, string](safemap.StringHash)
	front := localcache.New[string, string](localcache.WithCleanupInterval[string, string](0))
	defer front.Stop()
	cm := cachingmap.New[string, string](front, back,
		cachingmap.WithStrategy[string, string](cachingmap.StrategyPresent))
	defer cm.Release()

	require.NoError(t, cm.Put("a", "1"))
	_, _, err := cm.Get("a")
	require.NoError(t, err)
	back.Put("a", "2")

	col := NewCachingMapCollector(cm, "near")
	assert.Equal(t, 5, testutil.CollectAndCount(col))

	expected := strings.NewReader(`
# HELP cachingmap_invalidation_hits_total Back events that removed a front entry.
# TYPE cachingmap_invalidation_hits_total counter
cachingmap_invalidation_hits_total{cache="near"} 1
`)
	assert.NoError(t, testutil.CollectAndCompare(col, expected,
		"cachingmap_invalidation_hits_total"))
}
