// Package convert provides wrappers that let the front tier hold one
// in-memory representation while the back tier sees another, with
// every key and value passed through an up or down converter at the
// boundary. Events crossing the boundary are converted lazily and
// memoized.
package convert

import (
	"sync"
	"time"

	"github.com/Krishna8167/coherentcache/cacheerr"
	"github.com/Krishna8167/coherentcache/event"
	"github.com/Krishna8167/coherentcache/listener"
	"github.com/Krishna8167/coherentcache/namedcache"
)

// Converter maps a value from one representation to another.
type Converter[F, T any] func(F) T

// Cast adapts an any-typed value to T, surfacing class-cast instead
// of panicking when a heterogeneous map is traversed through a typed
// wrapper.
func Cast[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, cacheerr.ClassCast("cannot convert %T", v)
	}
	return t, nil
}

// Pair carries the two directions for one representation boundary:
// Up converts back-space to front-space, Down the reverse.
type Pair[F, B any] struct {
	Up   Converter[B, F]
	Down Converter[F, B]
}

// Identity is the Pair that converts nothing.
func Identity[T any]() Pair[T, T] {
	id := func(v T) T { return v }
	return Pair[T, T]{Up: id, Down: id}
}

// Map presents a CacheMap[KB, VB] as a CacheMap[KF, VF]: callers work
// in front-space, the underlying map stores back-space.
type Map[KF, KB comparable, VF, VB any] struct {
	under namedcache.CacheMap[KB, VB]
	key   Pair[KF, KB]
	val   Pair[VF, VB]
}

// NewMap wraps under with the given key and value converter pairs.
func NewMap[KF, KB comparable, VF, VB any](under namedcache.CacheMap[KB, VB], key Pair[KF, KB], val Pair[VF, VB]) *Map[KF, KB, VF, VB] {
	return &Map[KF, KB, VF, VB]{under: under, key: key, val: val}
}

// Underlying returns the wrapped back-space map.
func (m *Map[KF, KB, VF, VB]) Underlying() namedcache.CacheMap[KB, VB] { return m.under }

func (m *Map[KF, KB, VF, VB]) Size() int     { return m.under.Size() }
func (m *Map[KF, KB, VF, VB]) IsEmpty() bool { return m.under.IsEmpty() }

func (m *Map[KF, KB, VF, VB]) ContainsKey(key KF) bool {
	return m.under.ContainsKey(m.key.Down(key))
}

func (m *Map[KF, KB, VF, VB]) Get(key KF) (VF, bool) {
	v, ok := m.under.Get(m.key.Down(key))
	if !ok {
		var zero VF
		return zero, false
	}
	return m.val.Up(v), true
}

func (m *Map[KF, KB, VF, VB]) GetAll(keys []KF) map[KF]VF {
	down := make([]KB, len(keys))
	for i, k := range keys {
		down[i] = m.key.Down(k)
	}
	raw := m.under.GetAll(down)
	out := make(map[KF]VF, len(raw))
	for i, k := range keys {
		if v, ok := raw[down[i]]; ok {
			out[k] = m.val.Up(v)
		}
	}
	return out
}

func (m *Map[KF, KB, VF, VB]) Put(key KF, value VF) (VF, bool) {
	old, existed := m.under.Put(m.key.Down(key), m.val.Down(value))
	if !existed {
		var zero VF
		return zero, false
	}
	return m.val.Up(old), true
}

func (m *Map[KF, KB, VF, VB]) PutWithTTL(key KF, value VF, ttl time.Duration) (VF, bool) {
	old, existed := m.under.PutWithTTL(m.key.Down(key), m.val.Down(value), ttl)
	if !existed {
		var zero VF
		return zero, false
	}
	return m.val.Up(old), true
}

func (m *Map[KF, KB, VF, VB]) PutAll(entries map[KF]VF) {
	down := make(map[KB]VB, len(entries))
	for k, v := range entries {
		down[m.key.Down(k)] = m.val.Down(v)
	}
	m.under.PutAll(down)
}

func (m *Map[KF, KB, VF, VB]) Remove(key KF) (VF, bool) {
	old, existed := m.under.Remove(m.key.Down(key))
	if !existed {
		var zero VF
		return zero, false
	}
	return m.val.Up(old), true
}

func (m *Map[KF, KB, VF, VB]) Clear() { m.under.Clear() }

func (m *Map[KF, KB, VF, VB]) Keys() []KF {
	raw := m.under.Keys()
	out := make([]KF, len(raw))
	for i, k := range raw {
		out[i] = m.key.Up(k)
	}
	return out
}

func (m *Map[KF, KB, VF, VB]) Values() []VF {
	raw := m.under.Values()
	out := make([]VF, len(raw))
	for i, v := range raw {
		out[i] = m.val.Up(v)
	}
	return out
}

var _ namedcache.CacheMap[string, int] = (*Map[string, string, int, int])(nil)

// LazyEvent presents a back-space CacheEvent in front-space,
// converting each accessor's result on first use and memoizing it.
type LazyEvent[KF, KB comparable, VF, VB any] struct {
	Raw event.CacheEvent[KB, VB]

	key Pair[KF, KB]
	val Pair[VF, VB]

	keyOnce sync.Once
	keyVal  KF
	oldOnce sync.Once
	oldVal  VF
	newOnce sync.Once
	newVal  VF
}

// NewLazyEvent wraps raw with the given converter pairs.
func NewLazyEvent[KF, KB comparable, VF, VB any](raw event.CacheEvent[KB, VB], key Pair[KF, KB], val Pair[VF, VB]) *LazyEvent[KF, KB, VF, VB] {
	return &LazyEvent[KF, KB, VF, VB]{Raw: raw, key: key, val: val}
}

func (e *LazyEvent[KF, KB, VF, VB]) ID() event.ID { return e.Raw.ID }

func (e *LazyEvent[KF, KB, VF, VB]) Key() KF {
	e.keyOnce.Do(func() { e.keyVal = e.key.Up(e.Raw.Key) })
	return e.keyVal
}

func (e *LazyEvent[KF, KB, VF, VB]) OldValue() (VF, bool) {
	if !e.Raw.HasOldValue() {
		var zero VF
		return zero, false
	}
	e.oldOnce.Do(func() { e.oldVal = e.val.Up(e.Raw.OldValue) })
	return e.oldVal, true
}

func (e *LazyEvent[KF, KB, VF, VB]) NewValue() (VF, bool) {
	if !e.Raw.HasNewValue() {
		var zero VF
		return zero, false
	}
	e.newOnce.Do(func() { e.newVal = e.val.Up(e.Raw.NewValue) })
	return e.newVal, true
}

// Materialize builds the fully converted front-space event, reusing
// any accessor results already memoized.
func (e *LazyEvent[KF, KB, VF, VB]) Materialize(source interface{}) event.CacheEvent[KF, VF] {
	var old, new VF
	oldV, hasOld := e.OldValue()
	if hasOld {
		old = oldV
	}
	newV, hasNew := e.NewValue()
	if hasNew {
		new = newV
	}
	base := event.NewMapEvent[KF, VF](source, e.Raw.ID, e.Key(), old, new, hasOld, hasNew)
	return event.NewCacheEvent(base, e.Raw.Synthetic, e.Raw.Priming, e.Raw.Expired, e.Raw.TransformState)
}

// Listener wraps a front-space listener so it can be registered on a
// back-space observable map: each delivered event is re-presented in
// front-space. Synchronous/priming capabilities of the wrapped
// listener are preserved.
type Listener[KF, KB comparable, VF, VB any] struct {
	Wrapped listener.Listener[KF, VF]

	key    Pair[KF, KB]
	val    Pair[VF, VB]
	source interface{}
}

// NewListener wraps l for registration against a back-space map;
// source becomes the converted events' source.
func NewListener[KF, KB comparable, VF, VB any](l listener.Listener[KF, VF], key Pair[KF, KB], val Pair[VF, VB], source interface{}) *Listener[KF, KB, VF, VB] {
	return &Listener[KF, KB, VF, VB]{Wrapped: l, key: key, val: val, source: source}
}

func (w *Listener[KF, KB, VF, VB]) convert(e event.CacheEvent[KB, VB]) event.CacheEvent[KF, VF] {
	return NewLazyEvent(e, w.key, w.val).Materialize(w.source)
}

func (w *Listener[KF, KB, VF, VB]) EntryInserted(e event.CacheEvent[KB, VB]) error {
	return w.Wrapped.EntryInserted(w.convert(e))
}

func (w *Listener[KF, KB, VF, VB]) EntryUpdated(e event.CacheEvent[KB, VB]) error {
	return w.Wrapped.EntryUpdated(w.convert(e))
}

func (w *Listener[KF, KB, VF, VB]) EntryDeleted(e event.CacheEvent[KB, VB]) error {
	return w.Wrapped.EntryDeleted(w.convert(e))
}

// Synchronous reports the wrapped listener's synchronicity so the
// dispatch path treats the wrapper exactly like the listener it
// wraps.
func (w *Listener[KF, KB, VF, VB]) Synchronous() bool {
	s, ok := w.Wrapped.(listener.SynchronousCapable)
	return ok && s.Synchronous()
}

// Priming reports the wrapped listener's priming capability.
func (w *Listener[KF, KB, VF, VB]) Priming() bool {
	p, ok := w.Wrapped.(listener.PrimingCapable)
	return ok && p.Priming()
}

var _ listener.Listener[string, int] = (*Listener[string, string, int, int])(nil)
