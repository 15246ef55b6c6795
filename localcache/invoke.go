package localcache

import (
	"time"

	"github.com/Krishna8167/coherentcache/cacheerr"
	"github.com/Krishna8167/coherentcache/filter"
	"github.com/Krishna8167/coherentcache/namedcache"
)

// InvocableEntry is the mutable entry view handed to an
// EntryProcessor. Mutations are buffered and applied by the cache
// after Process returns, still under the entry's key lock.
type InvocableEntry[K comparable, V any] struct {
	key     K
	value   V
	present bool

	setValue V
	didSet   bool
	didRem   bool
}

func (e *InvocableEntry[K, V]) Key() K { return e.key }

// Value returns the current value and whether the entry is present.
func (e *InvocableEntry[K, V]) Value() (V, bool) {
	if e.didSet {
		return e.setValue, true
	}
	if e.didRem {
		var zero V
		return zero, false
	}
	return e.value, e.present
}

func (e *InvocableEntry[K, V]) IsPresent() bool {
	_, ok := e.Value()
	return ok
}

// SetValue buffers an insert-or-update of the entry.
func (e *InvocableEntry[K, V]) SetValue(v V) {
	e.setValue = v
	e.didSet = true
	e.didRem = false
}

// Remove buffers removal of the entry.
func (e *InvocableEntry[K, V]) Remove() {
	e.didRem = true
	e.didSet = false
}

// EntryProcessor is an atomically-applied per-entry computation:
// Process runs under the entry's key lock and its buffered mutations
// are applied before the lock drops.
type EntryProcessor[K comparable, V any] interface {
	Process(e *InvocableEntry[K, V]) any
}

// ProcessorFunc adapts a function to EntryProcessor.
type ProcessorFunc[K comparable, V any] func(e *InvocableEntry[K, V]) any

func (f ProcessorFunc[K, V]) Process(e *InvocableEntry[K, V]) any { return f(e) }

// Invoke runs p against key's entry under the key lock and returns
// p's result. The key lock is acquired with the configured wait; a
// timeout surfaces as concurrent-modification.
func (c *Cache[K, V]) Invoke(key K, p EntryProcessor[K, V]) (any, error) {
	if res := c.Lock(key, c.cfg.waitMillis); res != namedcache.Acquired {
		return nil, cacheerr.ConcurrentModification("invoke: key %v is locked", key)
	}
	defer c.Unlock(key)
	return c.invokeLocked(key, p), nil
}

func (c *Cache[K, V]) invokeLocked(key K, p EntryProcessor[K, V]) any {
	v, ok := c.getLocal(key)
	e := &InvocableEntry[K, V]{key: key, value: v, present: ok}
	result := p.Process(e)
	switch {
	case e.didRem && ok:
		c.removeInternal(key, false, false)
	case e.didSet:
		c.insertLocked(key, e.setValue, 0, false)
	}
	return result
}

// InvokeAll runs p against each key, locking the whole batch first.
// Lock acquisition rotates the key list on contention and retries, so
// two overlapping InvokeAll batches eventually make progress instead
// of deadlocking on opposite acquisition orders.
func (c *Cache[K, V]) InvokeAll(keys []K, p EntryProcessor[K, V]) (map[K]any, error) {
	keys = append([]K(nil), keys...)
	if err := c.lockAllKeys(keys, c.cfg.waitMillis); err != nil {
		return nil, err
	}
	defer func() {
		for _, k := range keys {
			c.Unlock(k)
		}
	}()

	out := make(map[K]any, len(keys))
	for _, k := range keys {
		out[k] = c.invokeLocked(k, p)
	}
	return out, nil
}

// InvokeAllFilter is InvokeAll over the keys currently matching f.
func (c *Cache[K, V]) InvokeAllFilter(f filter.Filter[V], p EntryProcessor[K, V]) (map[K]any, error) {
	return c.InvokeAll(c.KeySet(f, ""), p)
}

// lockAllKeys acquires every key lock in keys, releasing and rotating
// the list whenever one acquisition stalls. keys is mutated in place
// by the rotation.
func (c *Cache[K, V]) lockAllKeys(keys []K, wait time.Duration) error {
	deadline := time.Time{}
	hasDeadline := wait >= 0
	if hasDeadline {
		deadline = time.Now().Add(wait)
	}
	for {
		acquired := 0
		for i, k := range keys {
			if res := c.Lock(k, 0); res == namedcache.Acquired {
				acquired = i + 1
				continue
			}
			for _, held := range keys[:i] {
				c.Unlock(held)
			}
			acquired = 0
			// rotate the contended key to the front for the retry
			rotated := append([]K{k}, keys[:i]...)
			rotated = append(rotated, keys[i+1:]...)
			copy(keys, rotated)
			break
		}
		if acquired == len(keys) {
			return nil
		}
		if hasDeadline && time.Now().After(deadline) {
			return cacheerr.Timeout("invokeAll: could not lock %d keys", len(keys))
		}
		time.Sleep(time.Millisecond)
	}
}

// ConditionalProcessor applies Processor only to entries whose value
// matches Filter; non-matching entries return nil untouched.
type ConditionalProcessor[K comparable, V any] struct {
	Filter    filter.Filter[V]
	Processor EntryProcessor[K, V]
}

func (cp ConditionalProcessor[K, V]) Process(e *InvocableEntry[K, V]) any {
	v, ok := e.Value()
	if !ok || (cp.Filter != nil && !cp.Filter.Evaluate(v)) {
		return nil
	}
	return cp.Processor.Process(e)
}

// ConditionalRemove removes entries whose value matches Filter,
// returning the removed value when ReturnValue is set.
type ConditionalRemove[K comparable, V any] struct {
	Filter      filter.Filter[V]
	ReturnValue bool
}

func (cr ConditionalRemove[K, V]) Process(e *InvocableEntry[K, V]) any {
	v, ok := e.Value()
	if !ok || (cr.Filter != nil && !cr.Filter.Evaluate(v)) {
		return nil
	}
	e.Remove()
	if cr.ReturnValue {
		return v
	}
	return nil
}
