// Package localcache implements a bounded, observable, in-memory map
// with pluggable eviction, per-entry TTL, loader/store integration,
// per-key locking, filtered queries and entry processing. It is the
// engine CachingMap composes as its front tier.
//
// The storage shape is a doubly linked recency structure plus a
// lookup map, with a background janitor for active expiration. Three
// eviction policies run over per-entry touch metadata, bounds are
// unit-based rather than count-based, and reads can fall through to a
// CacheLoader while writes go through a CacheStore.
package localcache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Krishna8167/coherentcache/event"
	"github.com/Krishna8167/coherentcache/gate"
	"github.com/Krishna8167/coherentcache/listener"
	"github.com/Krishna8167/coherentcache/namedcache"
)

// Cache is LocalCache: a bounded, observable map with eviction, TTL,
// loader/store integration and per-key locking.
type Cache[K comparable, V any] struct {
	cfg *config[K, V]

	mu           sync.RWMutex
	data         map[K]*list.Element // list.Element.Value is *entry[K,V]
	recency      *list.List          // write order (front = most recently written); eviction and sweeps do not read it
	units        int64
	sup          *listener.Support[K, V]
	gate         *gate.Gate
	nextTok      int64 // monotonic token source for LockAll's gate.Token
	keyLocks     map[K]*keyLock
	lockAllToken int64
	indexes      map[string]*Index[K, V]

	sf singleflight.Group // coalesces concurrent loader misses for the same key

	stats   Stats
	statsMu sync.Mutex

	stopJanitor chan struct{}
	janitorOnce sync.Once
}

type keyLock struct {
	holder int64 // always 1; the holder's identity is not recorded, and an unlocked key has no keyLock
	waitCh chan struct{}
}

// New constructs a Cache. Defaults: unbounded (HighUnits=0), LRU
// eviction, no default expiry, locking not enforced.
func New[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	cfg := defaultConfig[K, V]()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.highUnits > 0 && cfg.lowUnits == 0 {
		cfg.lowUnits = (cfg.highUnits * 3) / 4
	}

	c := &Cache[K, V]{
		cfg:         cfg,
		data:        make(map[K]*list.Element),
		recency:     list.New(),
		sup:         listener.New[K, V](),
		gate:        gate.New(),
		keyLocks:    make(map[K]*keyLock),
		stopJanitor: make(chan struct{}),
	}
	if cfg.cleanupInterval > 0 {
		c.startJanitor()
	}
	return c
}

func (c *Cache[K, V]) now() time.Time { return c.cfg.clock.Now() }

// nextToken hands out a fresh gate.Token for a logical caller
// (LocalConcurrentCache has no OS-thread identity to key reentrancy
// off, so each LockAll caller owns one).
func (c *Cache[K, V]) nextToken() gate.Token {
	c.mu.Lock()
	c.nextTok++
	t := c.nextTok
	c.mu.Unlock()
	return gate.Token(t)
}

// Size returns the number of entries, expired or not (lazy expiry
// means a stale entry may still be counted until the next access or
// janitor sweep touches it).
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *Cache[K, V]) IsEmpty() bool { return c.Size() == 0 }

func (c *Cache[K, V]) ContainsKey(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Get returns key's value. On a miss (absent or expired), a configured
// CacheLoader is consulted; concurrent misses for the same key
// are coalesced through singleflight so only one Load call reaches the
// loader during a stampede.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if v, ok := c.getLocal(key); ok {
		return v, true
	}

	if c.cfg.loader == nil {
		c.recordMiss()
		var zero V
		return zero, false
	}

	type result struct {
		v     V
		ok    bool
		local bool
	}
	iface, _, _ := c.sf.Do(fmt.Sprintf("%v", key), func() (interface{}, error) {
		if v, ok := c.getLocal(key); ok {
			return result{v, true, true}, nil
		}
		v, ok, err := c.cfg.loader.Load(key)
		if err != nil {
			return result{}, err
		}
		if !ok {
			return result{}, nil
		}
		c.insertSynthetic(key, v)
		return result{v, true, false}, nil
	})
	r, _ := iface.(result)
	if !r.ok {
		c.recordMiss()
		var zero V
		return zero, false
	}
	if !r.local {
		c.recordHit()
	}
	return r.v, true
}

func (c *Cache[K, V]) getLocal(key K) (V, bool) {
	now := c.now()

	c.mu.RLock()
	el, found := c.data[key]
	c.mu.RUnlock()

	if !found {
		var zero V
		return zero, false
	}
	e := el.Value.(*entry[K, V])

	if e.expired(now, c.cfg.expiryMillis) {
		c.removeExpired(key)
		var zero V
		return zero, false
	}

	e.touch(now)
	c.recordHit()
	return e.value, true
}

func (c *Cache[K, V]) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *Cache[K, V]) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}

func (c *Cache[K, V]) GetAll(keys []K) map[K]V {
	out := make(map[K]V, len(keys))
	var misses []K
	for _, k := range keys {
		if v, ok := c.getLocal(k); ok {
			out[k] = v
		} else {
			misses = append(misses, k)
		}
	}
	if len(misses) == 0 || c.cfg.loader == nil {
		return out
	}
	loaded, err := c.cfg.loader.LoadAll(misses)
	if err != nil {
		return out
	}
	for k, v := range loaded {
		c.insertSynthetic(k, v)
		out[k] = v
	}
	return out
}

// Put inserts or replaces key's value with the cache-wide default TTL,
// write-through to any configured CacheStore.
func (c *Cache[K, V]) Put(key K, value V) (V, bool) {
	return c.put(key, value, 0, false)
}

// PutWithTTL is Put with a per-entry TTL override.
func (c *Cache[K, V]) PutWithTTL(key K, value V, ttl time.Duration) (V, bool) {
	return c.put(key, value, ttl.Milliseconds(), false)
}

func (c *Cache[K, V]) put(key K, value V, expiryMillis int64, synthetic bool) (V, bool) {
	if c.cfg.lockingEnforced && !c.holdsLock(key) {
		var zero V
		return zero, false
	}
	if !synthetic && c.cfg.store != nil {
		if err := c.cfg.store.Store(key, value); err != nil {
			var zero V
			return zero, false
		}
	}
	return c.insertLocked(key, value, expiryMillis, synthetic)
}

func (c *Cache[K, V]) insertSynthetic(key K, value V) {
	c.insertLocked(key, value, 0, true)
}

func (c *Cache[K, V]) insertLocked(key K, value V, expiryMillis int64, synthetic bool) (V, bool) {
	now := c.now()
	units := c.cfg.unitsOf(value)

	c.mu.Lock()
	if el, found := c.data[key]; found {
		e := el.Value.(*entry[K, V])
		old := e.value
		c.units += units - e.units
		e.value = value
		e.units = units
		if expiryMillis != 0 {
			e.expiryMillis = expiryMillis
		}
		e.isSynthetic = synthetic
		e.touch(now)
		c.recency.MoveToFront(el)
		c.mu.Unlock()

		c.updateIndexesOnPut(key, old, value, true)
		c.fire(event.Updated, key, old, value, true, true, synthetic)
		c.enforceUnits()
		return old, true
	}

	e := newEntry[K, V](key, c.cfg.hash(key), value, units, expiryMillis, now, synthetic)
	el := c.recency.PushFront(e)
	c.data[key] = el
	c.units += units
	c.mu.Unlock()

	var zero V
	c.updateIndexesOnPut(key, zero, value, false)
	c.fire(event.Inserted, key, zero, value, false, true, synthetic)
	c.enforceUnits()
	return zero, false
}

func (c *Cache[K, V]) PutAll(entries map[K]V) {
	for k, v := range entries {
		c.Put(k, v)
	}
}

// Remove deletes key, erasing through any configured CacheStore.
func (c *Cache[K, V]) Remove(key K) (V, bool) {
	if c.cfg.lockingEnforced && !c.holdsLock(key) {
		var zero V
		return zero, false
	}
	if c.cfg.store != nil {
		_ = c.cfg.store.Erase(key)
	}
	return c.removeInternal(key, false, false)
}

func (c *Cache[K, V]) removeExpired(key K) {
	c.removeInternal(key, true, true)
}

func (c *Cache[K, V]) removeInternal(key K, synthetic, expired bool) (V, bool) {
	c.mu.Lock()
	el, found := c.data[key]
	if !found {
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	delete(c.data, key)
	c.recency.Remove(el)
	c.units -= e.units
	c.mu.Unlock()

	c.updateIndexesOnRemove(key, e.value)
	c.fireExpiry(event.Deleted, key, e.value, e.value, true, false, synthetic || e.isSynthetic, expired)
	return e.value, true
}

// Clear removes every entry, firing one deleted event per key.
func (c *Cache[K, V]) Clear() {
	for _, k := range c.Keys() {
		c.removeInternal(k, false, false)
	}
}

// Truncate clears every entry without firing per-entry events,
// mirroring ObservableHashMap's documented truncate asymmetry. Used
// when the back tier reports a truncate and the front must follow
// silently.
func (c *Cache[K, V]) Truncate() {
	c.mu.Lock()
	c.data = make(map[K]*list.Element)
	c.recency.Init()
	c.units = 0
	idxs := c.indexes
	c.mu.Unlock()
	for _, idx := range idxs {
		idx.buckets = make(map[any]map[K]struct{})
	}
}

func (c *Cache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]K, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	return out
}

func (c *Cache[K, V]) Values() []V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]V, 0, len(c.data))
	for _, el := range c.data {
		out = append(out, el.Value.(*entry[K, V]).value)
	}
	return out
}

func (c *Cache[K, V]) fire(id event.ID, key K, old, new V, hasOld, hasNew, synthetic bool) {
	base := event.NewMapEvent[K, V](c, id, key, old, new, hasOld, hasNew)
	ce := event.NewCacheEvent(base, synthetic, false, false, event.Transformable)
	_ = c.sup.Dispatch(ce, false, nil)
}

func (c *Cache[K, V]) fireExpiry(id event.ID, key K, old, new V, hasOld, hasNew, synthetic, expired bool) {
	base := event.NewMapEvent[K, V](c, id, key, old, new, hasOld, hasNew)
	ce := event.CacheEvent[K, V]{MapEvent: base, Synthetic: synthetic, Expired: expired, TransformState: event.Transformable}
	_ = c.sup.Dispatch(ce, false, nil)
}

// Listeners exposes the underlying MapListenerSupport so callers and
// tests can register plain listeners directly.
func (c *Cache[K, V]) Listeners() *listener.Support[K, V] { return c.sup }

// Stats returns a snapshot of hit/miss/eviction counters.
func (c *Cache[K, V]) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Units returns the current total unit cost across all entries.
func (c *Cache[K, V]) Units() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.units
}

var _ namedcache.CacheMap[int, int] = (*Cache[int, int])(nil)
