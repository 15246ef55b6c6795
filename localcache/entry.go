package localcache

import (
	"time"

	"go.uber.org/atomic"
)

// entry is a LocalCache entry: value plus the bookkeeping the
// eviction policies and TTL check need. touchCount and lastTouch are
// atomic so a read-mostly Get can update recency without taking the
// cache's write lock.
type entry[K comparable, V any] struct {
	key   K
	value V

	keyHash uint32

	touchCount atomic.Int64
	lastTouch  atomic.Int64 // unix nanos

	// expiryMillis is this entry's TTL: 0 means "use the cache
	// default", negative means never expires, positive is an absolute
	// override.
	expiryMillis int64

	units int64

	// isSynthetic marks an entry that arrived through a CacheLoader
	// rather than a direct Put, so its removal event (Remove, Clear or
	// expiry) is tagged synthetic too until an explicit write replaces
	// it. Eviction events are synthetic regardless.
	isSynthetic bool
}

func newEntry[K comparable, V any](key K, hash uint32, value V, units int64, expiryMillis int64, now time.Time, synthetic bool) *entry[K, V] {
	e := &entry[K, V]{
		key:          key,
		value:        value,
		keyHash:      hash,
		units:        units,
		expiryMillis: expiryMillis,
		isSynthetic:  synthetic,
	}
	e.touchCount.Store(1)
	e.lastTouch.Store(now.UnixNano())
	return e
}

func (e *entry[K, V]) touch(now time.Time) {
	e.touchCount.Add(1)
	e.lastTouch.Store(now.UnixNano())
}

// expired reports whether the entry has outlived its TTL as of now,
// given defaultExpiryMillis (the cache-wide default used when
// expiryMillis == 0). A negative expiryMillis never expires.
func (e *entry[K, V]) expired(now time.Time, defaultExpiryMillis int64) bool {
	ms := e.expiryMillis
	if ms == 0 {
		ms = defaultExpiryMillis
	}
	if ms <= 0 {
		return false
	}
	deadline := e.lastTouch.Load() + int64(ms)*int64(time.Millisecond)
	return now.UnixNano() >= deadline
}

func (e *entry[K, V]) age(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.lastTouch.Load()))
}
