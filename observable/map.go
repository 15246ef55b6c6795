// Package observable implements ObservableHashMap: a SafeHashMap
// that fires MapEvents through a MapListenerSupport on every
// state-changing call. It is the storage engine behind the minimal
// namedcache.InMemoryCache test double that stands in for a remote
// NamedCache in tests. LocalCache does not use it; it keeps its own
// storage and listener.Support.
package observable

import (
	"time"

	"github.com/Krishna8167/coherentcache/event"
	"github.com/Krishna8167/coherentcache/filter"
	"github.com/Krishna8167/coherentcache/internal/safemap"
	"github.com/Krishna8167/coherentcache/listener"
)

type entry[V any] struct {
	value    V
	deadline time.Time // zero = never expires
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// Map is an observable hash map: safemap.Map plus a listener.Support
// hook. Strict is false by default (listener errors are dropped, not
// propagated), the right default for a back map whose listeners are
// installed by CachingMap itself.
type Map[K comparable, V any] struct {
	hash  safemap.HashFunc[K]
	data  *safemap.Map[K, entry[V]]
	sup   *listener.Support[K, V]
	clock func() time.Time

	// Strict controls whether a listener error aborts dispatch and
	// propagates to the mutator.
	Strict bool
}

// New constructs an empty observable Map using hash for bucket
// placement.
func New[K comparable, V any](hash safemap.HashFunc[K]) *Map[K, V] {
	return &Map[K, V]{
		hash:  hash,
		data:  safemap.New[K, entry[V]](hash, 0, 0, 0),
		sup:   listener.New[K, V](),
		clock: time.Now,
	}
}

// SetClock overrides the time source, for deterministic expiry tests.
func (m *Map[K, V]) SetClock(clock func() time.Time) { m.clock = clock }

func (m *Map[K, V]) fire(id event.ID, key K, old, new V, hasOld, hasNew bool, synthetic bool) {
	base := event.NewMapEvent[K, V](m, id, key, old, new, hasOld, hasNew)
	ce := event.NewCacheEvent(base, synthetic, false, false, event.Transformable)
	_ = m.sup.Dispatch(ce, m.Strict, nil)
}

// Size returns the number of live (non-expired) entries. Lazily
// expired entries still counted by SafeHashMap are skipped.
func (m *Map[K, V]) Size() int {
	n := 0
	m.data.ForEach(func(k K, e entry[V]) bool {
		if !e.expired(m.clock()) {
			n++
		}
		return true
	})
	return n
}

func (m *Map[K, V]) IsEmpty() bool { return m.Size() == 0 }

func (m *Map[K, V]) ContainsKey(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Get returns key's value, treating an expired entry as absent and
// firing a synthetic expired-delete event the first time it is
// observed.
func (m *Map[K, V]) Get(key K) (V, bool) {
	e, ok := m.data.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(m.clock()) {
		m.data.Remove(key)
		m.fireExpired(key, e.value)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (m *Map[K, V]) fireExpired(key K, old V) {
	base := event.NewMapEvent[K, V](m, event.Deleted, key, old, old, true, false)
	ce := event.NewCacheEvent(base, true, false, true, event.Transformable)
	_ = m.sup.Dispatch(ce, false, nil)
}

func (m *Map[K, V]) GetAll(keys []K) map[K]V {
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := m.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// Put inserts or replaces key's value with no expiry, firing an
// inserted or updated event.
func (m *Map[K, V]) Put(key K, value V) (V, bool) {
	return m.putWithDeadline(key, value, time.Time{})
}

// PutWithTTL is Put with a per-entry TTL; ttl<=0 means no expiry.
func (m *Map[K, V]) PutWithTTL(key K, value V, ttl time.Duration) (V, bool) {
	var deadline time.Time
	if ttl > 0 {
		deadline = m.clock().Add(ttl)
	}
	return m.putWithDeadline(key, value, deadline)
}

func (m *Map[K, V]) putWithDeadline(key K, value V, deadline time.Time) (V, bool) {
	old, existed := m.data.Put(key, entry[V]{value: value, deadline: deadline})
	if existed {
		m.fire(event.Updated, key, old.value, value, true, true, false)
		return old.value, true
	}
	var zero V
	m.fire(event.Inserted, key, zero, value, false, true, false)
	return zero, false
}

func (m *Map[K, V]) PutAll(entries map[K]V) {
	for k, v := range entries {
		m.Put(k, v)
	}
}

// Remove deletes key, firing a deleted event if it was present.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	old, existed := m.data.Remove(key)
	if !existed {
		var zero V
		return zero, false
	}
	m.fire(event.Deleted, key, old.value, old.value, true, false, false)
	return old.value, true
}

// Clear removes every entry, firing one deleted event per key (unlike
// Truncate).
func (m *Map[K, V]) Clear() {
	for _, k := range m.Keys() {
		m.Remove(k)
	}
}

// Truncate clears the map without emitting per-entry events — the
// documented ObservableHashMap asymmetry: downstream listeners
// relying on per-key delete notifications will not see this; a
// CachingMap deactivation listener must be told explicitly.
func (m *Map[K, V]) Truncate() {
	m.data.Clear()
}

func (m *Map[K, V]) Keys() []K {
	var out []K
	m.data.ForEach(func(k K, e entry[V]) bool {
		if !e.expired(m.clock()) {
			out = append(out, k)
		}
		return true
	})
	return out
}

func (m *Map[K, V]) Values() []V {
	var out []V
	m.data.ForEach(func(k K, e entry[V]) bool {
		if !e.expired(m.clock()) {
			out = append(out, e.value)
		}
		return true
	})
	return out
}

// AddKeyListener registers l for events on key. If l is priming-
// capable, a synthetic priming event reflecting the current value (or
// absence) is delivered immediately.
func (m *Map[K, V]) AddKeyListener(key K, l listener.Listener[K, V], lite bool) {
	m.sup.AddKeyListener(key, l, lite, func() *event.CacheEvent[K, V] {
		v, ok := m.Get(key)
		var zero V
		base := event.NewMapEvent[K, V](m, event.Inserted, key, zero, v, false, ok)
		ce := event.NewCacheEvent(base, true, true, false, event.Transformable)
		if !ok {
			ce.NewValue = zero
		}
		return &ce
	})
}

func (m *Map[K, V]) RemoveKeyListener(key K, l listener.Listener[K, V]) {
	m.sup.RemoveKeyListener(key, l)
}

func (m *Map[K, V]) AddMapListener(l listener.Listener[K, V]) {
	m.sup.AddFilterListener(filter.AlwaysEvent[K, V]{}, l, false, nil)
}

func (m *Map[K, V]) RemoveMapListener(l listener.Listener[K, V]) {
	m.sup.RemoveFilterListener(filter.AlwaysEvent[K, V]{}, l)
}

func (m *Map[K, V]) AddFilterListener(f filter.EventFilter[K, V], l listener.Listener[K, V], lite bool) {
	m.sup.AddFilterListener(f, l, lite, nil)
}

func (m *Map[K, V]) RemoveFilterListener(f filter.EventFilter[K, V], l listener.Listener[K, V]) {
	m.sup.RemoveFilterListener(f, l)
}

// Support exposes the underlying MapListenerSupport so callers can
// register or dispatch through the same registry directly.
func (m *Map[K, V]) Support() *listener.Support[K, V] { return m.sup }
