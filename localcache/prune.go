package localcache

import (
	"container/list"

	"github.com/Krishna8167/coherentcache/event"
)

// enforceUnits runs the configured eviction policy until units drops
// to LowUnits, once HighUnits is exceeded. The caller's own goroutine
// does the work inline; each eviction step (pick and remove) runs
// under mu, so concurrent callers may interleave steps, and each step
// rechecks LowUnits before evicting.
func (c *Cache[K, V]) enforceUnits() {
	if c.cfg.highUnits <= 0 {
		return
	}
	c.mu.Lock()
	over := c.units > c.cfg.highUnits
	c.mu.Unlock()
	if !over {
		return
	}

	// prune all the way down to the low-water mark, not just back
	// under highUnits
	for {
		c.mu.Lock()
		if c.units <= c.cfg.lowUnits || len(c.data) == 0 {
			c.mu.Unlock()
			return
		}

		entries := make([]*entry[K, V], 0, len(c.data))
		elems := make([]*list.Element, 0, len(c.data))
		for _, el := range c.data {
			entries = append(entries, el.Value.(*entry[K, V]))
			elems = append(elems, el)
		}

		victimIdx := pickVictim(c.cfg.policy, entries, c.now())
		victim := entries[victimIdx]
		victimElem := elems[victimIdx]

		delete(c.data, victim.key)
		c.recency.Remove(victimElem)
		c.units -= victim.units
		remaining := c.units
		target := c.cfg.lowUnits
		c.mu.Unlock()

		c.updateIndexesOnRemove(victim.key, victim.value)

		c.statsMu.Lock()
		c.stats.Evictions++
		c.statsMu.Unlock()

		base := event.NewMapEvent[K, V](c, event.Deleted, victim.key, victim.value, victim.value, true, false)
		ce := event.CacheEvent[K, V]{MapEvent: base, Synthetic: true, TransformState: event.Transformable}
		_ = c.sup.Dispatch(ce, false, nil)

		c.cfg.logger.V(1).Info("evicted entry", "policy", c.cfg.policy.String(), "units", remaining, "lowUnits", target)

		if remaining <= target {
			return
		}
	}
}
