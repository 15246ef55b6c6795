// Package filter defines the Filter interfaces consumed by
// listener.Support, localcache query operations and CachingMap's
// invalidation-strategy listeners, plus a handful of concrete filters
// (Present, MapEventFilter, paging).
package filter

import "github.com/Krishna8167/coherentcache/event"

// Filter evaluates a predicate over a value of type V. Index-aware
// filters may additionally implement IndexAware.
type Filter[V any] interface {
	Evaluate(value V) bool
}

// EventFilter evaluates a predicate over a CacheEvent, used to decide
// whether a listener should receive a given event.
type EventFilter[K comparable, V any] interface {
	EvaluateEvent(e event.CacheEvent[K, V]) bool
}

// IndexAware lets a filter report how effective an index-based scan
// would be, rather than scanning every entry.
type IndexAware interface {
	CalculateEffectiveness() int
}

// FuncFilter adapts a plain predicate function to Filter.
type FuncFilter[V any] func(V) bool

func (f FuncFilter[V]) Evaluate(v V) bool { return f(v) }

// Always is a Filter that matches every value.
type Always[V any] struct{}

func (Always[V]) Evaluate(V) bool { return true }

// AlwaysEvent is the EventFilter counterpart of Always.
type AlwaysEvent[K comparable, V any] struct{}

func (AlwaysEvent[K, V]) EvaluateEvent(event.CacheEvent[K, V]) bool { return true }

// Present evaluates true iff the key is live in the map supplied at
// construction time: the cheap default filter over "all present
// keys", which query scans use when the caller passes no filter.
type Present[K comparable] struct {
	Contains func(K) bool
}

func (p Present[K]) Evaluate(k K) bool { return p.Contains(k) }

// MapEventFilter restricts dispatch to specific event IDs and,
// optionally, a value predicate evaluated against the event's new
// value. The logical invalidation strategy uses one of these,
// configured to reject synthetic events.
type MapEventFilter[K comparable, V any] struct {
	Mask        int // bitmask of accepted event.ID values, see MaskInserted etc.
	ValueFilter Filter[V]
	// ExcludeSynthetic drops events with Synthetic=true, implementing
	// the `logical` strategy's tolerance of back eviction/expiry.
	ExcludeSynthetic bool
}

const (
	MaskInserted = 1 << event.Inserted
	MaskUpdated  = 1 << event.Updated
	MaskDeleted  = 1 << event.Deleted
	MaskAll      = MaskInserted | MaskUpdated | MaskDeleted
)

func (f MapEventFilter[K, V]) EvaluateEvent(e event.CacheEvent[K, V]) bool {
	if f.ExcludeSynthetic && e.Synthetic {
		return false
	}
	if f.Mask != 0 && f.Mask&(1<<e.ID) == 0 {
		return false
	}
	if f.ValueFilter != nil {
		return f.ValueFilter.Evaluate(e.NewValue)
	}
	return true
}

// Page paginates an ordered slice with a stable-ordering-across-
// pages guarantee: callers must supply entries already sorted by a
// stable comparator (or the key hash fallback).
func Page[T any](ordered []T, pageSize, pageIndex int) []T {
	if pageSize <= 0 {
		return ordered
	}
	start := pageSize * pageIndex
	if start >= len(ordered) {
		return nil
	}
	end := start + pageSize
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[start:end]
}
