package localcache

import (
	"sort"

	"github.com/Krishna8167/coherentcache/filter"
)

// Index is a value-extractor index over live entries:
// extracted value -> set of keys currently mapping to it. Maintained
// incrementally on every Put/Remove so queries that can use it avoid a
// full scan.
type Index[K comparable, V any] struct {
	Extractor func(V) any
	buckets   map[any]map[K]struct{}
}

func newIndex[K comparable, V any](extractor func(V) any) *Index[K, V] {
	return &Index[K, V]{Extractor: extractor, buckets: make(map[any]map[K]struct{})}
}

func (ix *Index[K, V]) insert(key K, value V) {
	ev := ix.Extractor(value)
	set := ix.buckets[ev]
	if set == nil {
		set = make(map[K]struct{})
		ix.buckets[ev] = set
	}
	set[key] = struct{}{}
}

func (ix *Index[K, V]) remove(key K, value V) {
	ev := ix.Extractor(value)
	set := ix.buckets[ev]
	if set == nil {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(ix.buckets, ev)
	}
}

func (ix *Index[K, V]) keysEqual(want any) []K {
	set := ix.buckets[want]
	out := make([]K, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// IndexedFilter is implemented by query filters that can exploit a
// named Index instead of a full scan.
type IndexedFilter[K comparable, V any] interface {
	filter.Filter[V]
	// ApplyIndex attempts to resolve matching keys using idx alone,
	// returning ok=false to fall back to a full scan.
	ApplyIndex(idx *Index[K, V]) (keys []K, ok bool)
}

// EqualsFilter matches entries whose indexed field equals Want, and
// resolves through the Index named by KeySet's indexName when one is
// registered under that name.
type EqualsFilter[K comparable, V any] struct {
	Extract func(V) any
	Want    any
}

func (f EqualsFilter[K, V]) Evaluate(v V) bool { return f.Extract(v) == f.Want }

func (f EqualsFilter[K, V]) ApplyIndex(idx *Index[K, V]) ([]K, bool) {
	return idx.keysEqual(f.Want), true
}

func (f EqualsFilter[K, V]) CalculateEffectiveness() int { return 1 }

// AddIndex registers a named extractor-backed Index, backfilling it
// from the current contents.
func (c *Cache[K, V]) AddIndex(name string, extractor func(V) any) {
	c.mu.Lock()
	if c.indexes == nil {
		c.indexes = make(map[string]*Index[K, V])
	}
	idx := newIndex[K, V](extractor)
	for k, el := range c.data {
		idx.insert(k, el.Value.(*entry[K, V]).value)
	}
	c.indexes[name] = idx
	c.mu.Unlock()
}

// RemoveIndex drops a previously added index.
func (c *Cache[K, V]) RemoveIndex(name string) {
	c.mu.Lock()
	delete(c.indexes, name)
	c.mu.Unlock()
}

func (c *Cache[K, V]) updateIndexesOnPut(key K, old V, new V, hadOld bool) {
	c.mu.RLock()
	idxs := c.indexes
	c.mu.RUnlock()
	for _, idx := range idxs {
		if hadOld {
			idx.remove(key, old)
		}
		idx.insert(key, new)
	}
}

func (c *Cache[K, V]) updateIndexesOnRemove(key K, value V) {
	c.mu.RLock()
	idxs := c.indexes
	c.mu.RUnlock()
	for _, idx := range idxs {
		idx.remove(key, value)
	}
}

func (c *Cache[K, V]) indexNamed(name string) *Index[K, V] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexes[name]
}

// snapshot returns every live (key, value) pair under a read lock,
// skipping expired entries without removing them (callers that mutate
// do their own expiry handling through Get/removeExpired).
func (c *Cache[K, V]) snapshot() []EntrySnap[K, V] {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]EntrySnap[K, V], 0, len(c.data))
	for k, el := range c.data {
		e := el.Value.(*entry[K, V])
		if e.expired(now, c.cfg.expiryMillis) {
			continue
		}
		out = append(out, EntrySnap[K, V]{Key: k, Value: e.value, Hash: e.keyHash})
	}
	return out
}

type EntrySnap[K comparable, V any] struct {
	Key   K
	Value V
	Hash  uint32
}

// hasLive reports whether key maps to an unexpired entry, without
// touching recency metadata or stats.
func (c *Cache[K, V]) hasLive(key K) bool {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	el, found := c.data[key]
	return found && !el.Value.(*entry[K, V]).expired(now, c.cfg.expiryMillis)
}

// presentFilter is the default query predicate: present in this cache.
func (c *Cache[K, V]) presentFilter() filter.Present[K] {
	return filter.Present[K]{Contains: c.hasLive}
}

// KeySet returns every key whose value matches f, using a registered
// Index when f is an IndexedFilter naming one available. A nil f
// selects all present keys.
func (c *Cache[K, V]) KeySet(f filter.Filter[V], indexName string) []K {
	if f == nil {
		present := c.presentFilter()
		var out []K
		for _, e := range c.snapshot() {
			if present.Evaluate(e.Key) {
				out = append(out, e.Key)
			}
		}
		return out
	}
	if indexed, ok := f.(IndexedFilter[K, V]); ok && indexName != "" {
		if idx := c.indexNamed(indexName); idx != nil {
			if keys, ok := indexed.ApplyIndex(idx); ok {
				return keys
			}
		}
	}
	var out []K
	for _, e := range c.snapshot() {
		if f.Evaluate(e.Value) {
			out = append(out, e.Key)
		}
	}
	return out
}

// EntrySet returns every (key, value) matching f, ordered by cmp when
// non-nil.
func (c *Cache[K, V]) EntrySet(f filter.Filter[V], cmp func(a, b EntrySnap[K, V]) bool) []EntrySnap[K, V] {
	present := c.presentFilter()
	var out []EntrySnap[K, V]
	for _, e := range c.snapshot() {
		if f == nil {
			if present.Evaluate(e.Key) {
				out = append(out, e)
			}
			continue
		}
		if f.Evaluate(e.Value) {
			out = append(out, e)
		}
	}
	if cmp != nil {
		sort.SliceStable(out, func(i, j int) bool { return cmp(out[i], out[j]) })
	}
	return out
}

// EntryPage returns page pageIndex (pageSize entries) of the entries
// matching f. Ordering is stable across pages: cmp when supplied,
// otherwise key hash ascending.
func (c *Cache[K, V]) EntryPage(f filter.Filter[V], cmp func(a, b EntrySnap[K, V]) bool, pageSize, pageIndex int) []EntrySnap[K, V] {
	if cmp == nil {
		cmp = func(a, b EntrySnap[K, V]) bool { return a.Hash < b.Hash }
	}
	ordered := c.EntrySet(f, cmp)
	return filter.Page(ordered, pageSize, pageIndex)
}
