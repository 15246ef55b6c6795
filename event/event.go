// Package event defines the event data model shared by ObservableMap,
// LocalCache and CachingMap: MapEvent, CacheEvent and
// FilterEvent.
package event

// ID identifies the kind of mutation a MapEvent describes.
type ID int

const (
	Inserted ID = iota
	Updated
	Deleted
)

func (id ID) String() string {
	switch id {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// TransformationState describes how a CacheEvent has been or should
// be transformed before reaching transformer-aware listeners.
type TransformationState int

const (
	// NonTransformable events never reach transformer-aware listeners.
	NonTransformable TransformationState = iota
	// Transformable events may be transformed; they reach all listeners.
	Transformable
	// Transformed events have already been transformed and reach only
	// transformer-aware listeners.
	Transformed
)

// MapEvent is the base event data model: source, id, key, old/new
// value.
type MapEvent[K comparable, V any] struct {
	Source   interface{} // the originating map, opaque to consumers
	ID       ID
	Key      K
	OldValue V
	NewValue V
	hasOld   bool
	hasNew   bool
}

// NewMapEvent constructs a MapEvent. hasOld/hasNew record whether the
// corresponding value is meaningful (a lite event may omit both).
func NewMapEvent[K comparable, V any](source interface{}, id ID, key K, oldValue, newValue V, hasOld, hasNew bool) MapEvent[K, V] {
	return MapEvent[K, V]{
		Source: source, ID: id, Key: key,
		OldValue: oldValue, NewValue: newValue,
		hasOld: hasOld, hasNew: hasNew,
	}
}

// HasOldValue reports whether OldValue carries meaningful data (as
// opposed to a lite event's zero value).
func (e MapEvent[K, V]) HasOldValue() bool { return e.hasOld }

// HasNewValue reports whether NewValue carries meaningful data.
func (e MapEvent[K, V]) HasNewValue() bool { return e.hasNew }

// CacheEvent extends MapEvent with synthetic/priming/expired flags and
// a TransformationState.
type CacheEvent[K comparable, V any] struct {
	MapEvent[K, V]
	Synthetic      bool
	Priming        bool
	Expired        bool
	TransformState TransformationState
}

// NewCacheEvent constructs a CacheEvent.
func NewCacheEvent[K comparable, V any](base MapEvent[K, V], synthetic, priming, expired bool, transform TransformationState) CacheEvent[K, V] {
	return CacheEvent[K, V]{
		MapEvent:       base,
		Synthetic:      synthetic,
		Priming:        priming,
		Expired:        expired,
		TransformState: transform,
	}
}

// FilterEvent additionally carries the filters that caused dispatch
// and may wrap an underlying event, matching the optimization that
// lets MapListenerSupport avoid recomputing filter evaluation once a
// match is known.
type FilterEvent[K comparable, V any] struct {
	CacheEvent[K, V]
	Filters    []interface{} // concrete filter.Filter[K,V], kept opaque to avoid an import cycle
	Underlying *CacheEvent[K, V]
}
