package namedcache

import (
	"sync"
	"time"

	"github.com/Krishna8167/coherentcache/internal/safemap"
	"github.com/Krishna8167/coherentcache/observable"
)

// InMemoryCache is a minimal in-memory NamedCache-shaped collaborator:
// CacheMap + ObservableMap + ConcurrentMap built directly on
// observable.Map, used in place of a real remote cache service to
// exercise CachingMap end to end.
type InMemoryCache[K comparable, V any] struct {
	*observable.Map[K, V]

	mu           sync.Mutex
	locks        map[any]chan struct{}
	destroyed    bool
	deactivators []DeactivationListener
}

// NewInMemoryCache constructs an InMemoryCache hashing keys with hash.
func NewInMemoryCache[K comparable, V any](hash safemap.HashFunc[K]) *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		Map:   observable.New[K, V](hash),
		locks: make(map[any]chan struct{}),
	}
}

// Lock acquires the exclusive per-key lock, waiting up to wait (<0 =
// forever, 0 = no wait).
func (c *InMemoryCache[K, V]) Lock(key K, wait time.Duration) LockResult {
	deadline := time.Time{}
	hasDeadline := wait >= 0
	if hasDeadline {
		deadline = time.Now().Add(wait)
	}
	for {
		c.mu.Lock()
		ch, busy := c.locks[any(key)]
		if !busy {
			c.locks[any(key)] = make(chan struct{})
			c.mu.Unlock()
			return Acquired
		}
		c.mu.Unlock()

		if wait == 0 {
			return TimedOut
		}
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return TimedOut
			}
			select {
			case <-ch:
			case <-time.After(remaining):
				return TimedOut
			}
		} else {
			<-ch
		}
	}
}

// Unlock releases key's lock, a no-op if not held.
func (c *InMemoryCache[K, V]) Unlock(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.locks[any(key)]
	if !ok {
		return false
	}
	delete(c.locks, any(key))
	close(ch)
	return true
}

// LockAll is the LOCK_ALL escalation: refuses if any per-key lock is
// currently held (a real implementation would close a ThreadGate; this
// test double only needs the refusal semantics CachingMap depends on).
func (c *InMemoryCache[K, V]) LockAll(wait time.Duration) LockResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.locks) > 0 {
		return TimedOut
	}
	return Acquired
}

func (c *InMemoryCache[K, V]) UnlockAll() {}

// AddDeactivationListener registers l to be notified of Destroy/Truncate.
func (c *InMemoryCache[K, V]) AddDeactivationListener(l DeactivationListener) {
	c.mu.Lock()
	c.deactivators = append(c.deactivators, l)
	c.mu.Unlock()
}

// Destroy marks the cache destroyed and notifies deactivation
// listeners.
func (c *InMemoryCache[K, V]) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	ls := append([]DeactivationListener(nil), c.deactivators...)
	c.mu.Unlock()
	for _, l := range ls {
		l.CacheDestroyed()
	}
}

// TruncateCache clears the map without per-entry events and notifies
// deactivation listeners.
func (c *InMemoryCache[K, V]) TruncateCache() {
	c.Map.Truncate()
	c.mu.Lock()
	ls := append([]DeactivationListener(nil), c.deactivators...)
	c.mu.Unlock()
	for _, l := range ls {
		l.CacheTruncated()
	}
}

// Destroyed reports whether Destroy has been called.
func (c *InMemoryCache[K, V]) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}
