package cachingmap

import (
	"sync"
	"time"

	"github.com/Krishna8167/coherentcache/event"
	"github.com/Krishna8167/coherentcache/namedcache"
)

// controlMap is CachingMap's per-key coordination surface:
// for every in-flight operation on a key there is exactly one holder
// of the key's control entry, and back events arriving while the key
// is held are parked on the entry instead of touching the front.
type controlMap[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*controlEntry[K, V]
}

type controlEntry[K comparable, V any] struct {
	waitCh chan struct{} // closed on unlock
	events []event.CacheEvent[K, V]
}

func newControlMap[K comparable, V any]() *controlMap[K, V] {
	return &controlMap[K, V]{entries: make(map[K]*controlEntry[K, V])}
}

// Lock acquires key's control entry, waiting up to wait (<0 forever,
// 0 no wait).
func (cm *controlMap[K, V]) Lock(key K, wait time.Duration) namedcache.LockResult {
	deadline := time.Time{}
	hasDeadline := wait >= 0
	if hasDeadline {
		deadline = time.Now().Add(wait)
	}
	for {
		cm.mu.Lock()
		ce, busy := cm.entries[key]
		if !busy {
			cm.entries[key] = &controlEntry[K, V]{waitCh: make(chan struct{})}
			cm.mu.Unlock()
			return namedcache.Acquired
		}
		ch := ce.waitCh
		cm.mu.Unlock()

		if wait == 0 {
			return namedcache.TimedOut
		}
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return namedcache.TimedOut
			}
			timer := time.NewTimer(remaining)
			select {
			case <-ch:
				timer.Stop()
			case <-timer.C:
				return namedcache.TimedOut
			}
		} else {
			<-ch
		}
	}
}

// Unlock releases key's control entry and wakes waiters, returning
// any events that parked after the holder's last TakeCapture: the
// caller must replay those against the front.
func (cm *controlMap[K, V]) Unlock(key K) []event.CacheEvent[K, V] {
	cm.mu.Lock()
	ce, held := cm.entries[key]
	if !held {
		cm.mu.Unlock()
		return nil
	}
	delete(cm.entries, key)
	cm.mu.Unlock()
	close(ce.waitCh)
	return ce.events
}

// TakeCapture returns and clears the events parked on key's held
// control entry so far.
func (cm *controlMap[K, V]) TakeCapture(key K) []event.CacheEvent[K, V] {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	ce, held := cm.entries[key]
	if !held {
		return nil
	}
	events := ce.events
	ce.events = nil
	return events
}

// Park appends e to key's control entry whenever the key is held,
// reporting whether the event was absorbed. A false return means the
// caller must apply the event to the front itself.
func (cm *controlMap[K, V]) Park(key K, e event.CacheEvent[K, V]) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	ce, held := cm.entries[key]
	if !held {
		return false
	}
	ce.events = append(ce.events, e)
	return true
}
