// Package namedcache defines the external interfaces the caching core
// consumes but does not itself implement: CacheMap, ObservableMap,
// ConcurrentMap, CacheLoader, CacheStore and DeactivationListener.
// It also provides InMemoryCache, a
// minimal in-memory NamedCache-shaped collaborator (built from
// observable.Map) used to exercise CachingMap in tests in place of a
// real remote cache service.
package namedcache

import (
	"time"

	"github.com/Krishna8167/coherentcache/filter"
	"github.com/Krishna8167/coherentcache/listener"
)

// CacheMap is the contract shared by the front and back tiers.
type CacheMap[K comparable, V any] interface {
	Size() int
	IsEmpty() bool
	ContainsKey(key K) bool
	Get(key K) (V, bool)
	GetAll(keys []K) map[K]V
	Put(key K, value V) (V, bool)
	PutWithTTL(key K, value V, ttl time.Duration) (V, bool)
	PutAll(entries map[K]V)
	Remove(key K) (V, bool)
	Clear()
	Keys() []K
	Values() []V
}

// ObservableMap is the optional back-tier capability for registering
// listeners.
type ObservableMap[K comparable, V any] interface {
	AddKeyListener(key K, l listener.Listener[K, V], lite bool)
	RemoveKeyListener(key K, l listener.Listener[K, V])
	AddMapListener(l listener.Listener[K, V])
	RemoveMapListener(l listener.Listener[K, V])
	AddFilterListener(f filter.EventFilter[K, V], l listener.Listener[K, V], lite bool)
	RemoveFilterListener(f filter.EventFilter[K, V], l listener.Listener[K, V])
}

// LockResult is the outcome of a ConcurrentMap.Lock attempt.
type LockResult int

const (
	Acquired LockResult = iota
	TimedOut
	Interrupted
)

// ConcurrentMap is the per-key locking contract shared by the
// control map and locking caches. LockAll is the whole-map
// escalation.
type ConcurrentMap[K comparable] interface {
	Lock(key K, wait time.Duration) LockResult
	Unlock(key K) bool
	LockAll(wait time.Duration) LockResult
	UnlockAll()
}

// CacheLoader reads through to a backing system of record on a
// miss.
type CacheLoader[K comparable, V any] interface {
	Load(key K) (V, bool, error)
	LoadAll(keys []K) (map[K]V, error)
}

// IterableCacheLoader additionally enumerates every key it could
// load, enabling LoadAll without an explicit key set.
type IterableCacheLoader[K comparable, V any] interface {
	CacheLoader[K, V]
	Keys() ([]K, error)
}

// CacheStore writes through to a backing system of record. Every
// method may return cacheerr.ErrUnsupported for a read-only store.
type CacheStore[K comparable, V any] interface {
	CacheLoader[K, V]
	Store(key K, value V) error
	StoreAll(entries map[K]V) error
	Erase(key K) error
	EraseAll(keys []K) error
}

// DeactivationListener is notified when the back cache is destroyed
// or truncated.
type DeactivationListener interface {
	CacheDestroyed()
	CacheTruncated()
}
