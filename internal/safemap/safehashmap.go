// Package safemap implements SafeHashMap: a thread-safe,
// open-addressed (chained-bucket) hash map that supports stable
// iteration across concurrent resizes. It is the storage basis for
// ObservableHashMap; LocalCache does not use it.
package safemap

import (
	"sync"

	"go.uber.org/atomic"
)

// HashFunc computes a 32-bit hash for a key. Callers own the quality
// of the hash; collisions are resolved by chaining regardless.
type HashFunc[K comparable] func(K) uint32

type node[K comparable, V any] struct {
	hash  uint32
	key   K
	value V
	next  *node[K, V]
}

type table[K comparable, V any] []*node[K, V]

// Map is a SafeHashMap.
type Map[K comparable, V any] struct {
	hash HashFunc[K]

	loadFactor float64
	growth     float64

	mu    sync.Mutex // guards writers and resize
	count atomic.Int64

	buckets atomic.Pointer[table[K, V]]

	notifyMu sync.Mutex
	resizeCh chan struct{}

	activeIterators atomic.Int32
}

const defaultInitialBuckets = 17 // prime

// New constructs a Map with the given initial bucket count (rounded
// up to a prime), load factor and growth rate.
func New[K comparable, V any](hash HashFunc[K], initialBuckets int, loadFactor, growthRate float64) *Map[K, V] {
	if initialBuckets <= 0 {
		initialBuckets = defaultInitialBuckets
	}
	if loadFactor <= 0 {
		loadFactor = 0.75
	}
	if growthRate <= 1 {
		growthRate = 2
	}
	tbl := make(table[K, V], nextPrime(initialBuckets))
	m := &Map[K, V]{
		hash:       hash,
		loadFactor: loadFactor,
		growth:     growthRate,
		resizeCh:   make(chan struct{}),
	}
	m.buckets.Store(&tbl)
	return m
}

func (m *Map[K, V]) waitForResize() {
	m.notifyMu.Lock()
	ch := m.resizeCh
	m.notifyMu.Unlock()
	<-ch
}

func (m *Map[K, V]) notifyResize() {
	m.notifyMu.Lock()
	close(m.resizeCh)
	m.resizeCh = make(chan struct{})
	m.notifyMu.Unlock()
}

// Get looks up key, retrying if a concurrent resize is observed
// mid-lookup (getEntryInternal semantics).
func (m *Map[K, V]) Get(key K) (V, bool) {
	h := m.hash(key)
	for {
		tbl := m.buckets.Load()
		if tbl == nil || len(*tbl) == 0 {
			m.waitForResize()
			continue
		}
		idx := h % uint32(len(*tbl))
		for n := (*tbl)[idx]; n != nil; n = n.next {
			if n.hash == h && n.key == key {
				// Re-read to confirm the table has not resized under us;
				// a resize could have rehashed this entry into a state
				// inconsistent with what we just traversed.
				if m.buckets.Load() != tbl {
					break
				}
				return n.value, true
			}
		}
		if m.buckets.Load() != tbl {
			continue
		}
		var zero V
		return zero, false
	}
}

// ContainsKey reports whether key is present.
func (m *Map[K, V]) ContainsKey(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Put inserts or replaces key's value, returning the previous value
// (if any). Growth threshold: resize is triggered once the entry
// count exceeds buckets*loadFactor (boundary test: resize happens the
// insert that makes count == buckets*loadFactor+1).
func (m *Map[K, V]) Put(key K, value V) (V, bool) {
	h := m.hash(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl := m.buckets.Load()
	idx := h % uint32(len(*tbl))
	for n := (*tbl)[idx]; n != nil; n = n.next {
		if n.hash == h && n.key == key {
			old := n.value
			n.value = value
			return old, true
		}
	}

	n := &node[K, V]{hash: h, key: key, value: value, next: (*tbl)[idx]}
	(*tbl)[idx] = n
	count := m.count.Add(1)

	threshold := float64(len(*tbl)) * m.loadFactor
	if float64(count) > threshold {
		m.growLocked()
	}

	var zero V
	return zero, false
}

// Remove deletes key, returning its value if present.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	h := m.hash(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl := m.buckets.Load()
	idx := h % uint32(len(*tbl))
	var prev *node[K, V]
	for n := (*tbl)[idx]; n != nil; n = n.next {
		if n.hash == h && n.key == key {
			if prev == nil {
				(*tbl)[idx] = n.next
			} else {
				prev.next = n.next
			}
			m.count.Add(-1)
			return n.value, true
		}
		prev = n
	}
	var zero V
	return zero, false
}

// Len returns the current entry count.
func (m *Map[K, V]) Len() int {
	return int(m.count.Load())
}

// Clear removes every entry without emitting per-entry notifications
// (callers that need events iterate and Remove explicitly instead).
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := make(table[K, V], defaultInitialBuckets)
	m.buckets.Store(&tbl)
	m.count.Store(0)
}

// growLocked must be called with mu held. It briefly publishes a
// zero-length sentinel table (callers mid-Get observe it and wait on
// resizeCh) while it rehashes into a freshly sized table.
func (m *Map[K, V]) growLocked() {
	old := m.buckets.Load()

	if m.activeIterators.Load() > 0 {
		// Iterators hold their own snapshot (see NewIterator) so it is
		// safe to resize under them; no special handling needed here
		// beyond what's already done.
		_ = 0
	}

	empty := make(table[K, V], 0)
	m.buckets.Store(&empty)

	newCap := nextPrime(int(float64(len(*old)) * m.growth))
	newTbl := make(table[K, V], newCap)
	for _, head := range *old {
		for n := head; n != nil; {
			next := n.next
			idx := n.hash % uint32(newCap)
			n.next = newTbl[idx]
			newTbl[idx] = n
			n = next
		}
	}

	m.buckets.Store(&newTbl)
	m.notifyResize()
}

// Entry is a (key, value) pair captured by an Iterator snapshot.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Iterator yields a stable snapshot of the map's contents as of the
// moment it was created: every key present at creation is visited
// exactly once, even across one or more intervening resizes.
type Iterator[K comparable, V any] struct {
	m      *Map[K, V]
	items  []Entry[K, V]
	pos    int
	closed bool
}

// NewIterator snapshots the map's current contents under its write
// lock and registers the iterator as active until Close is called.
func (m *Map[K, V]) NewIterator() *Iterator[K, V] {
	m.mu.Lock()
	tbl := m.buckets.Load()
	items := make([]Entry[K, V], 0, m.count.Load())
	for _, head := range *tbl {
		for n := head; n != nil; n = n.next {
			items = append(items, Entry[K, V]{Key: n.key, Value: n.value})
		}
	}
	m.mu.Unlock()

	m.activeIterators.Add(1)
	return &Iterator[K, V]{m: m, items: items}
}

// Next advances the iterator, returning false once exhausted.
func (it *Iterator[K, V]) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

// Entry returns the current (key, value) pair. Valid only after a
// Next call that returned true.
func (it *Iterator[K, V]) Entry() Entry[K, V] {
	return it.items[it.pos-1]
}

// Close decrements the active-iterator count. Safe to call multiple
// times.
func (it *Iterator[K, V]) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.m.activeIterators.Add(-1)
}

// ForEach visits every (key, value) in a stable snapshot.
func (m *Map[K, V]) ForEach(fn func(K, V) bool) {
	it := m.NewIterator()
	defer it.Close()
	for it.Next() {
		e := it.Entry()
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

func nextPrime(n int) int {
	if n < 2 {
		return 2
	}
	for !isPrime(n) {
		n++
	}
	return n
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}
