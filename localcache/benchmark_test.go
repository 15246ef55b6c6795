package localcache

import (
	"fmt"
	"testing"
	"time"
)

// BenchmarkPut measures the core write path: same key overwritten
// repeatedly, so map growth stays out of the measurement.
func BenchmarkPut(b *testing.B) {
	c := newTestCache()
	for i := 0; i < b.N; i++ {
		c.PutWithTTL("key", "value", 5*time.Second)
	}
}

func BenchmarkGetHit(b *testing.B) {
	c := newTestCache()
	c.Put("key", "value")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}

func BenchmarkGetMiss(b *testing.B) {
	c := newTestCache()
	for i := 0; i < b.N; i++ {
		c.Get("absent")
	}
}

// BenchmarkPutParallel exercises mutex contention across goroutines.
func BenchmarkPutParallel(b *testing.B) {
	c := newTestCache()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Put(fmt.Sprintf("key-%d", i%64), "value")
			i++
		}
	})
}

// BenchmarkEviction measures the write path while the unit bound
// forces a prune (from 129 units down to the default low level of 96)
// on every 33rd insert once the cache has filled.
func BenchmarkEviction(b *testing.B) {
	c := newTestCache(
		WithHighUnits[string, string](128),
		WithEvictionPolicy[string, string](LRU),
	)
	for i := 0; i < b.N; i++ {
		c.Put(fmt.Sprintf("key-%d", i), "value")
	}
}
