// Package listener implements MapListenerSupport: the
// filter-and-key-scoped listener registry behind observable.Map and
// CachingMap's invalidation listener. Add/remove are serialized under
// the support's own lock; events are collected under that lock and
// fired outside it, so a listener callback never runs while the
// registry lock is held.
package listener

import (
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/Krishna8167/coherentcache/event"
	"github.com/Krishna8167/coherentcache/filter"
)

// Listener receives entry-level notifications. All three methods are
// invoked with the registry lock released; a returned error is
// handled per the dispatch mode (see Dispatch).
type Listener[K comparable, V any] interface {
	EntryInserted(e event.CacheEvent[K, V]) error
	EntryUpdated(e event.CacheEvent[K, V]) error
	EntryDeleted(e event.CacheEvent[K, V]) error
}

// SynchronousCapable is implemented by listeners that must run on the
// producer's thread rather than a deferred dispatch goroutine.
type SynchronousCapable interface {
	Synchronous() bool
}

// PrimingCapable is implemented by listeners that want a synthetic
// priming event reflecting current state on registration.
type PrimingCapable interface {
	Priming() bool
}

// TransformAware is implemented by listeners that should receive
// Transformed events (and only those, plus Transformable ones).
type TransformAware interface {
	TransformAware() bool
}

// FilterAware is implemented by listeners that want to know which
// filters caused an event's dispatch. When at least one filter
// matched, such listeners receive the enriched FilterEvent through
// OnFilterEvent instead of the plain entry callbacks, so they never
// re-evaluate filters a dispatch already ran.
type FilterAware[K comparable, V any] interface {
	OnFilterEvent(e event.FilterEvent[K, V]) error
}

func isSynchronous[K comparable, V any](l Listener[K, V]) bool {
	s, ok := l.(SynchronousCapable)
	return ok && s.Synchronous()
}

func isPriming[K comparable, V any](l Listener[K, V]) bool {
	p, ok := l.(PrimingCapable)
	return ok && p.Priming()
}

func isTransformAware[K comparable, V any](l Listener[K, V]) bool {
	t, ok := l.(TransformAware)
	return ok && t.TransformAware()
}

// OptimizationPlan names the dispatch fast-path currently in effect,
// tracked so common single-listener setups skip filter iteration.
type OptimizationPlan int

const (
	PlanNone OptimizationPlan = iota
	PlanNoListeners
	PlanAllListener // a single Always filter listener, no key listeners
	PlanKeyListener // only key listeners, no filters
	PlanNoOptimize
)

type regEntry[K comparable, V any] struct {
	listener Listener[K, V]
	lite     bool
	seq      uint64
}

// filterGroup pairs a filter with its registered listeners. Filters
// are kept in a slice rather than as map keys because a Filter may be
// a func-backed value (FuncFilter) or otherwise hold incomparable
// fields; RemoveFilterListener finds the group with sameFilter and
// then matches the listener within it.
type filterGroup[K comparable, V any] struct {
	filter filter.EventFilter[K, V]
	regs   []*regEntry[K, V]
}

// Support is MapListenerSupport.
type Support[K comparable, V any] struct {
	mu sync.Mutex

	filterGroups []*filterGroup[K, V]
	keyRegs      map[K][]*regEntry[K, V]

	seq atomic.Uint64

	// ErrHandler receives errors from non-strict dispatch; may be nil.
	ErrHandler func(error)
}

// New constructs an empty Support.
func New[K comparable, V any]() *Support[K, V] {
	return &Support[K, V]{
		keyRegs: make(map[K][]*regEntry[K, V]),
	}
}

// AddFilterListener registers l for every event matching f. primer, if
// non-nil, is invoked (lock released) to build a priming event for l
// if l is priming-capable.
func (s *Support[K, V]) AddFilterListener(f filter.EventFilter[K, V], l Listener[K, V], lite bool, primer func() *event.CacheEvent[K, V]) {
	entry := &regEntry[K, V]{listener: l, lite: lite, seq: s.seq.Add(1)}
	s.mu.Lock()
	var group *filterGroup[K, V]
	for _, g := range s.filterGroups {
		if sameFilter(g.filter, f) {
			group = g
			break
		}
	}
	if group == nil {
		group = &filterGroup[K, V]{filter: f}
		s.filterGroups = append(s.filterGroups, group)
	}
	group.regs = append(group.regs, entry)
	s.mu.Unlock()

	s.maybePrime(l, primer)
}

// RemoveFilterListener removes l's registration against f, if present.
// f is matched with == (see sameFilter): pointer filters by identity,
// comparable value filters by value. A filter whose dynamic type is
// not comparable never matches, so such a registration is not removed.
func (s *Support[K, V]) RemoveFilterListener(f filter.EventFilter[K, V], l Listener[K, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for gi, g := range s.filterGroups {
		if !sameFilter(g.filter, f) {
			continue
		}
		for i, r := range g.regs {
			if sameListener(r.listener, l) {
				g.regs = append(g.regs[:i], g.regs[i+1:]...)
				break
			}
		}
		if len(g.regs) == 0 {
			s.filterGroups = append(s.filterGroups[:gi], s.filterGroups[gi+1:]...)
		}
		return
	}
}

// sameFilter compares filters by identity where possible (pointer
// filters, or comparable value filters); incomparable value filters
// (e.g. FuncFilter) are never considered the same instance, so removal
// for those must go through the listener match within the correct
// group, which callers achieve by holding onto the same *filterGroup
// indirectly via keeping their own filter pointer.
func sameFilter[K comparable, V any](a, b filter.EventFilter[K, V]) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// AddKeyListener registers l for events on key.
func (s *Support[K, V]) AddKeyListener(key K, l Listener[K, V], lite bool, primer func() *event.CacheEvent[K, V]) {
	entry := &regEntry[K, V]{listener: l, lite: lite, seq: s.seq.Add(1)}
	s.mu.Lock()
	s.keyRegs[key] = append(s.keyRegs[key], entry)
	s.mu.Unlock()

	s.maybePrime(l, primer)
}

// RemoveKeyListener removes l's registration against key, if present.
func (s *Support[K, V]) RemoveKeyListener(key K, l Listener[K, V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := s.keyRegs[key]
	for i, r := range regs {
		if sameListener(r.listener, l) {
			regs = append(regs[:i], regs[i+1:]...)
			break
		}
	}
	if len(regs) == 0 {
		delete(s.keyRegs, key)
	} else {
		s.keyRegs[key] = regs
	}
}

func (s *Support[K, V]) maybePrime(l Listener[K, V], primer func() *event.CacheEvent[K, V]) {
	if primer == nil || !isPriming[K, V](l) {
		return
	}
	if e := primer(); e != nil {
		_ = deliver(l, *e)
	}
}

func sameListener[K comparable, V any](a, b Listener[K, V]) bool {
	return a == b
}

// HasKeyListeners reports whether any listener is registered for key.
func (s *Support[K, V]) HasKeyListeners(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keyRegs[key]) > 0
}

// IsEmpty reports whether no filter or key listeners are registered.
func (s *Support[K, V]) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.filterGroups) == 0 && len(s.keyRegs) == 0
}

// Plan reports the current optimization plan.
func (s *Support[K, V]) Plan() OptimizationPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case len(s.filterGroups) == 0 && len(s.keyRegs) == 0:
		return PlanNoListeners
	case len(s.keyRegs) == 0 && len(s.filterGroups) == 1:
		if _, ok := s.filterGroups[0].filter.(filter.AlwaysEvent[K, V]); ok {
			return PlanAllListener
		}
		return PlanNoOptimize
	case len(s.filterGroups) == 0:
		return PlanKeyListener
	default:
		return PlanNoOptimize
	}
}

// collect gathers, deduplicates and orders the listeners that should
// receive e, applying the TransformationState filter. It also reports
// the filters whose evaluation caused the dispatch, for FilterEvent
// enrichment. The returned slice preserves registration order.
func (s *Support[K, V]) collect(e event.CacheEvent[K, V]) ([]*regEntry[K, V], bool, []interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[Listener[K, V]]bool)
	var candidates []*regEntry[K, V]
	var matched []interface{}

	for _, g := range s.filterGroups {
		if !g.filter.EvaluateEvent(e) {
			continue
		}
		matched = append(matched, g.filter)
		for _, r := range g.regs {
			if !seen[r.listener] {
				seen[r.listener] = true
				candidates = append(candidates, r)
			}
		}
	}
	for _, r := range s.keyRegs[e.Key] {
		if !seen[r.listener] {
			seen[r.listener] = true
			candidates = append(candidates, r)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })

	hasStandard := false
	var filtered []*regEntry[K, V]
	for _, r := range candidates {
		aware := isTransformAware[K, V](r.listener)
		switch e.TransformState {
		case event.NonTransformable:
			if aware {
				continue
			}
		case event.Transformed:
			if !aware {
				continue
			}
		}
		if !r.lite {
			hasStandard = true
		}
		filtered = append(filtered, r)
	}

	return filtered, hasStandard, matched
}

// NeedsValues reports whether dispatching e would reach any standard
// (non-lite) listener, so the caller can upgrade a lite event with
// old/new values before calling Dispatch.
func (s *Support[K, V]) NeedsValues(e event.CacheEvent[K, V]) bool {
	_, hasStandard, _ := s.collect(e)
	return hasStandard
}

// Dispatcher, if set via Dispatch's dispatcher argument, runs non-
// synchronous listener callbacks; nil runs them inline.
type Dispatcher func(func())

// Dispatch delivers e to every matching listener in registration
// order. Synchronous listeners always run inline on the calling
// goroutine. When at least one filter matched, filter-aware listeners
// receive the enriched FilterEvent carrying those filters. In strict
// mode, a listener error aborts dispatch for the remaining listeners
// and is returned to the caller; otherwise it is passed to ErrHandler
// (if set) and dispatch continues.
func (s *Support[K, V]) Dispatch(e event.CacheEvent[K, V], strict bool, dispatcher Dispatcher) error {
	candidates, _, matched := s.collect(e)

	var fe *event.FilterEvent[K, V]
	if len(matched) > 0 {
		fe = &event.FilterEvent[K, V]{CacheEvent: e, Filters: matched, Underlying: &e}
	}

	for _, r := range candidates {
		l := r.listener
		if dispatcher == nil || isSynchronous[K, V](l) {
			if err := deliverEnriched(l, e, fe); err != nil {
				if strict {
					return err
				}
				if s.ErrHandler != nil {
					s.ErrHandler(err)
				}
			}
			continue
		}
		dispatcher(func() {
			if err := deliverEnriched(l, e, fe); err != nil && s.ErrHandler != nil {
				s.ErrHandler(err)
			}
		})
	}
	return nil
}

// deliverEnriched hands fe to filter-aware listeners when filters
// drove the dispatch, and falls back to the plain entry callbacks.
func deliverEnriched[K comparable, V any](l Listener[K, V], e event.CacheEvent[K, V], fe *event.FilterEvent[K, V]) error {
	if fe != nil {
		if fa, ok := l.(FilterAware[K, V]); ok {
			return fa.OnFilterEvent(*fe)
		}
	}
	return deliver(l, e)
}

func deliver[K comparable, V any](l Listener[K, V], e event.CacheEvent[K, V]) error {
	switch e.ID {
	case event.Inserted:
		return l.EntryInserted(e)
	case event.Updated:
		return l.EntryUpdated(e)
	case event.Deleted:
		return l.EntryDeleted(e)
	default:
		return nil
	}
}
