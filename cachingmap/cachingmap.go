// Package cachingmap implements CachingMap: the composition of a
// cheap front tier over an authoritative, observable back tier, kept
// coherent by an invalidation strategy.
//
// Per-key ordering runs through a control map: every read-miss and
// every write holds the key's control entry for the duration of the
// back call, and back events arriving inside that window are parked on
// the entry and consumed by the holder's freshness decision instead of
// touching the front. A ThreadGate serializes the global strategy
// promotion against the per-key paths.
package cachingmap

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/Krishna8167/coherentcache/cacheerr"
	"github.com/Krishna8167/coherentcache/event"
	"github.com/Krishna8167/coherentcache/filter"
	"github.com/Krishna8167/coherentcache/gate"
	"github.com/Krishna8167/coherentcache/listener"
	"github.com/Krishna8167/coherentcache/namedcache"
)

// Back is what CachingMap requires of its back tier: the CacheMap
// contract plus listener registration.
type Back[K comparable, V any] interface {
	namedcache.CacheMap[K, V]
	namedcache.ObservableMap[K, V]
}

// Destroyer is optionally implemented by back tiers whose destruction
// CachingMap.Destroy should request.
type Destroyer interface {
	Destroy()
}

// DeactivationSource is optionally implemented by back tiers that
// notify on destroy/truncate; CachingMap installs its deactivation
// listener through it.
type DeactivationSource interface {
	AddDeactivationListener(l namedcache.DeactivationListener)
}

// Truncatable is optionally implemented by front tiers that can clear
// without firing per-entry events.
type Truncatable interface {
	Truncate()
}

// CachingMap composes front over back under an invalidation strategy.
type CachingMap[K comparable, V any] struct {
	cfg *config[K, V]

	front namedcache.CacheMap[K, V]
	back  Back[K, V]

	ctl *controlMap[K, V]
	g   *gate.Gate
	tok atomic.Int64

	// strategyCurrent may lag cfg.strategy (the target): auto starts
	// at present and promotes to all under the gate.
	strategyCurrent atomic.Int32

	keyMu    sync.Mutex
	keyRegs  map[K]struct{}
	backL    *invalidationListener[K, V]
	filterL  filter.EventFilter[K, V] // installed filter, nil unless a filter listener is active
	deactL   *deactivationListener[K, V]
	released atomic.Bool

	sf singleflight.Group

	stats statCounters
}

// New composes front over back. The zero-config strategy is auto.
func New[K comparable, V any](front namedcache.CacheMap[K, V], back Back[K, V], opts ...Option[K, V]) *CachingMap[K, V] {
	cfg := defaultConfig[K, V]()
	for _, opt := range opts {
		opt(cfg)
	}

	cm := &CachingMap[K, V]{
		cfg:     cfg,
		front:   front,
		back:    back,
		ctl:     newControlMap[K, V](),
		g:       gate.New(),
		keyRegs: make(map[K]struct{}),
	}
	cm.backL = &invalidationListener[K, V]{cm: cm, priming: cfg.strategy.usesKeyListeners()}

	current := cfg.strategy
	if current == StrategyAuto {
		current = StrategyPresent
	}
	cm.strategyCurrent.Store(int32(current))

	if current.usesFilterListener() {
		if current == StrategyLogical {
			cm.filterL = filter.MapEventFilter[K, V]{ExcludeSynthetic: true}
		} else {
			cm.filterL = filter.AlwaysEvent[K, V]{}
		}
		back.AddFilterListener(cm.filterL, cm.backL, false)
	}

	if ds, ok := back.(DeactivationSource); ok {
		cm.deactL = &deactivationListener[K, V]{cm: cm}
		ds.AddDeactivationListener(cm.deactL)
	}

	return cm
}

// Front returns the front tier, nil once released.
func (cm *CachingMap[K, V]) Front() namedcache.CacheMap[K, V] {
	if cm.released.Load() {
		return nil
	}
	return cm.front
}

// Back returns the back tier.
func (cm *CachingMap[K, V]) Back() Back[K, V] { return cm.back }

// Strategy returns the target strategy; CurrentStrategy the one in
// effect (they differ only for auto before promotion).
func (cm *CachingMap[K, V]) Strategy() Strategy { return cm.cfg.strategy }

func (cm *CachingMap[K, V]) CurrentStrategy() Strategy {
	return Strategy(cm.strategyCurrent.Load())
}

// Stats returns a snapshot of hit/miss/invalidation counters.
func (cm *CachingMap[K, V]) Stats() Stats { return cm.stats.snapshot() }

func (cm *CachingMap[K, V]) nextToken() gate.Token {
	return gate.Token(cm.tok.Add(1))
}

func (cm *CachingMap[K, V]) checkLive() error {
	if cm.released.Load() {
		return cacheerr.IllegalState("cachingmap: released")
	}
	return nil
}

func hashKey[K comparable](key K) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%v", key)
	return h.Sum64()
}

// Get serves key from the front when possible; on a miss it runs the
// per-key read protocol under the key's control entry.
// Concurrent misses for the same key are coalesced so a stampede
// reaches the back once.
func (cm *CachingMap[K, V]) Get(key K) (V, bool, error) {
	var zero V
	if err := cm.checkLive(); err != nil {
		return zero, false, err
	}

	tok := cm.nextToken()
	if err := cm.g.Enter(tok, -1); err != nil {
		return zero, false, err
	}
	defer cm.g.Exit(tok)

	if v, ok := cm.front.Get(key); ok {
		cm.stats.hits.Add(1)
		return v, true, nil
	}
	cm.stats.misses.Add(1)

	type result struct {
		v  V
		ok bool
	}
	iface, err, _ := cm.sf.Do(fmt.Sprintf("%v", key), func() (interface{}, error) {
		v, ok, err := cm.readThrough(key, tok)
		return result{v, ok}, err
	})
	if err != nil {
		return zero, false, err
	}
	r := iface.(result)
	return r.v, r.ok, nil
}

// readThrough is the locked portion of the read protocol: double-check
// the front, capture events, read the back, and cache the result only
// when the captured events prove it fresh.
func (cm *CachingMap[K, V]) readThrough(key K, tok gate.Token) (V, bool, error) {
	var zero V
	if res := cm.ctl.Lock(key, -1); res != namedcache.Acquired {
		return zero, false, cacheerr.Interrupted("get: control lock for key %v", key)
	}
	defer cm.unlockKey(key)

	if v, ok := cm.front.Get(key); ok {
		return v, true, nil
	}

	registered := cm.registerKey(key, tok)
	v, ok := cm.back.Get(key)
	events := cm.ctl.TakeCapture(key)

	if ok && cm.proveFresh(events, key, v) {
		cm.front.Put(key, v)
	} else if registered {
		cm.unregisterKey(key)
	}
	if !ok {
		return zero, false, nil
	}
	return v, true, nil
}

// proveFresh implements the eventsProveFresh rule: no captured event
// for key, or a final event whose new value equals v, means v is safe
// to cache.
func (cm *CachingMap[K, V]) proveFresh(events []event.CacheEvent[K, V], key K, v V) bool {
	last, ok := lastFor(events, key)
	if !ok {
		return true
	}
	if last.ID == event.Deleted && !last.Priming {
		return false
	}
	return last.HasNewValue() && cm.cfg.equals(last.NewValue, v)
}

func lastFor[K comparable, V any](events []event.CacheEvent[K, V], key K) (event.CacheEvent[K, V], bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Key == key {
			return events[i], true
		}
	}
	var zero event.CacheEvent[K, V]
	return zero, false
}

// Put writes through to the back and conditionally refreshes the
// front.
func (cm *CachingMap[K, V]) Put(key K, value V) error {
	_, _, err := cm.put(key, value, 0, false)
	return err
}

// PutWithTTL is Put with a per-entry TTL applied to both tiers.
func (cm *CachingMap[K, V]) PutWithTTL(key K, value V, ttl time.Duration) error {
	_, _, err := cm.put(key, value, ttl, false)
	return err
}

// PutReturning is Put returning the back's previous value.
func (cm *CachingMap[K, V]) PutReturning(key K, value V) (V, bool, error) {
	return cm.put(key, value, 0, true)
}

func (cm *CachingMap[K, V]) put(key K, value V, ttl time.Duration, returnOld bool) (V, bool, error) {
	var zero V
	if err := cm.checkLive(); err != nil {
		return zero, false, err
	}

	tok := cm.nextToken()
	if err := cm.g.Enter(tok, -1); err != nil {
		return zero, false, err
	}
	defer cm.g.Exit(tok)

	if res := cm.ctl.Lock(key, -1); res != namedcache.Acquired {
		return zero, false, cacheerr.Interrupted("put: control lock for key %v", key)
	}
	defer cm.unlockKey(key)

	var old V
	var existed bool
	if ttl > 0 {
		old, existed = cm.back.PutWithTTL(key, value, ttl)
	} else {
		old, existed = cm.back.Put(key, value)
	}
	events := cm.ctl.TakeCapture(key)

	cm.finalizePut(key, value, events, ttl, tok)

	if returnOld {
		return old, existed, nil
	}
	return zero, false, nil
}

// finalizePut caches value in the front only when the captured events
// prove no external change raced the write.
func (cm *CachingMap[K, V]) finalizePut(key K, value V, events []event.CacheEvent[K, V], ttl time.Duration, tok gate.Token) {
	fresh := true
	if last, ok := lastFor(events, key); ok {
		fresh = last.ID != event.Deleted && last.HasNewValue() && cm.cfg.equals(last.NewValue, value)
	}
	if !fresh {
		cm.front.Remove(key)
		if cm.CurrentStrategy().usesKeyListeners() {
			cm.unregisterKey(key)
		}
		return
	}
	cm.registerKey(key, tok)
	if ttl > 0 {
		cm.front.PutWithTTL(key, value, ttl)
	} else {
		cm.front.Put(key, value)
	}
}

// Remove deletes key from the back; the front entry goes with it.
func (cm *CachingMap[K, V]) Remove(key K) (V, bool, error) {
	var zero V
	if err := cm.checkLive(); err != nil {
		return zero, false, err
	}

	tok := cm.nextToken()
	if err := cm.g.Enter(tok, -1); err != nil {
		return zero, false, err
	}
	defer cm.g.Exit(tok)

	if res := cm.ctl.Lock(key, -1); res != namedcache.Acquired {
		return zero, false, cacheerr.Interrupted("remove: control lock for key %v", key)
	}
	defer cm.unlockKey(key)

	old, existed := cm.back.Remove(key)
	cm.ctl.TakeCapture(key)

	cm.front.Remove(key)
	if cm.CurrentStrategy().usesKeyListeners() {
		cm.unregisterKey(key)
	}
	return old, existed, nil
}

// GetAll serves what it can from the front and batch-reads the rest,
// locking the missing keys in hash order to avoid deadlock.
// If the batch locks cannot all be acquired within the control wait,
// the whole remainder falls back to per-key Get.
func (cm *CachingMap[K, V]) GetAll(keys []K) (map[K]V, error) {
	if err := cm.checkLive(); err != nil {
		return nil, err
	}

	tok := cm.nextToken()
	if err := cm.g.Enter(tok, -1); err != nil {
		return nil, err
	}
	defer cm.g.Exit(tok)

	out := make(map[K]V, len(keys))
	seen := make(map[K]struct{}, len(keys))
	var misses []K
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if v, ok := cm.front.Get(k); ok {
			cm.stats.hits.Add(1)
			out[k] = v
		} else {
			cm.stats.misses.Add(1)
			misses = append(misses, k)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	sortByHash(misses)

	locked, ok := cm.lockBatch(misses)
	if !ok {
		cm.unlockBatch(locked)
		for _, k := range misses {
			if v, found, err := cm.Get(k); err != nil {
				return out, err
			} else if found {
				out[k] = v
			}
		}
		return out, nil
	}
	defer cm.unlockBatch(misses)

	var remaining []K
	for _, k := range misses {
		if v, found := cm.front.Get(k); found {
			out[k] = v
			continue
		}
		remaining = append(remaining, k)
	}

	fetched := cm.back.GetAll(remaining)
	for _, k := range remaining {
		events := cm.ctl.TakeCapture(k)
		v, found := fetched[k]
		if !found {
			continue
		}
		out[k] = v
		if cm.proveFresh(events, k, v) {
			cm.registerKey(k, tok)
			cm.front.Put(k, v)
		}
	}
	return out, nil
}

// PutAll writes the batch through to the back under the same ordered
// locking discipline as GetAll, then finalizes each key.
func (cm *CachingMap[K, V]) PutAll(entries map[K]V) error {
	if err := cm.checkLive(); err != nil {
		return err
	}

	tok := cm.nextToken()
	if err := cm.g.Enter(tok, -1); err != nil {
		return err
	}
	defer cm.g.Exit(tok)

	keys := make([]K, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sortByHash(keys)

	locked, ok := cm.lockBatch(keys)
	if !ok {
		cm.unlockBatch(locked)
		for k, v := range entries {
			if _, _, err := cm.put(k, v, 0, false); err != nil {
				return err
			}
		}
		return nil
	}
	defer cm.unlockBatch(keys)

	cm.back.PutAll(entries)
	for _, k := range keys {
		events := cm.ctl.TakeCapture(k)
		cm.finalizePut(k, entries[k], events, 0, tok)
	}
	return nil
}

func sortByHash[K comparable](keys []K) {
	sort.Slice(keys, func(i, j int) bool { return hashKey(keys[i]) < hashKey(keys[j]) })
}

// lockBatch acquires keys in order, returning the prefix acquired and
// whether the whole batch was locked.
func (cm *CachingMap[K, V]) lockBatch(keys []K) ([]K, bool) {
	for i, k := range keys {
		if res := cm.ctl.Lock(k, cm.cfg.controlWait); res != namedcache.Acquired {
			return keys[:i], false
		}
	}
	return keys, true
}

func (cm *CachingMap[K, V]) unlockBatch(keys []K) {
	for _, k := range keys {
		cm.unlockKey(k)
	}
}

// unlockKey releases key's control entry and replays any events that
// parked after the holder's freshness decision, so no invalidation is
// lost across a locked window.
func (cm *CachingMap[K, V]) unlockKey(key K) {
	for _, e := range cm.ctl.Unlock(key) {
		cm.applyBackEvent(e)
	}
}

// ContainsKey reports whether key is in either tier.
func (cm *CachingMap[K, V]) ContainsKey(key K) (bool, error) {
	if err := cm.checkLive(); err != nil {
		return false, err
	}
	if cm.front.ContainsKey(key) {
		return true, nil
	}
	return cm.back.ContainsKey(key), nil
}

// Size reports the back tier's size (the authoritative count).
func (cm *CachingMap[K, V]) Size() (int, error) {
	if err := cm.checkLive(); err != nil {
		return 0, err
	}
	return cm.back.Size(), nil
}

// Clear removes every entry through the back, then clears the front
// directly.
func (cm *CachingMap[K, V]) Clear() error {
	if err := cm.checkLive(); err != nil {
		return err
	}
	cm.back.Clear()
	cm.front.Clear()
	return nil
}

// onBackEvent routes a back event: parked when the key is
// under control by an in-flight operation, applied to the front
// otherwise.
func (cm *CachingMap[K, V]) onBackEvent(e event.CacheEvent[K, V]) {
	if cm.released.Load() {
		return
	}
	if cm.ctl.Park(e.Key, e) {
		return
	}
	cm.applyBackEvent(e)
}

// applyBackEvent invalidates (or, for priming, seeds) the front for a
// single back event.
func (cm *CachingMap[K, V]) applyBackEvent(e event.CacheEvent[K, V]) {
	if cm.released.Load() {
		return
	}

	if e.Priming {
		// A direct priming outside a capture window seeds the front
		// if the slot is unoccupied.
		if e.HasNewValue() && !cm.front.ContainsKey(e.Key) {
			cm.front.Put(e.Key, e.NewValue)
		}
		return
	}

	if _, removed := cm.front.Remove(e.Key); removed {
		cm.stats.invHits.Add(1)
	} else {
		cm.stats.invMisses.Add(1)
	}
	if e.ID == event.Deleted && cm.CurrentStrategy().usesKeyListeners() {
		cm.unregisterKey(e.Key)
	}
	cm.cfg.logger.V(1).Info("invalidated front entry", "key", fmt.Sprintf("%v", e.Key), "event", e.ID.String())
}

// registerKey installs the per-key invalidation listener for key under
// the present/auto strategies, reporting whether a new registration
// happened. Crossing the promotion threshold under auto triggers
// promotion to all.
func (cm *CachingMap[K, V]) registerKey(key K, tok gate.Token) bool {
	if !cm.CurrentStrategy().usesKeyListeners() {
		return false
	}
	cm.keyMu.Lock()
	if _, dup := cm.keyRegs[key]; dup {
		cm.keyMu.Unlock()
		return false
	}
	cm.keyRegs[key] = struct{}{}
	cm.keyMu.Unlock()

	cm.back.AddKeyListener(key, cm.backL, false)
	n := cm.stats.registrations.Add(1)

	if cm.cfg.strategy == StrategyAuto && n >= uint64(cm.cfg.promotionThreshold) && cm.CurrentStrategy() == StrategyPresent {
		cm.promote(tok)
	}
	return true
}

func (cm *CachingMap[K, V]) unregisterKey(key K) {
	cm.keyMu.Lock()
	_, present := cm.keyRegs[key]
	delete(cm.keyRegs, key)
	cm.keyMu.Unlock()
	if present {
		cm.back.RemoveKeyListener(key, cm.backL)
	}
}

// promote switches auto from present to all under the gate's global
// barrier: the front is emptied, per-key listeners are dropped, and a
// single filter listener takes over. A barrier that cannot
// be acquired within the control wait defers promotion to a later
// registration.
func (cm *CachingMap[K, V]) promote(tok gate.Token) {
	if err := cm.g.Close(tok, cm.cfg.controlWait); err != nil {
		cm.cfg.logger.V(1).Info("strategy promotion deferred", "reason", err.Error())
		return
	}
	defer func() { _ = cm.g.Open(tok) }()

	if cm.CurrentStrategy() != StrategyPresent {
		return
	}

	cm.truncateFront()
	cm.dropKeyListeners()

	cm.filterL = filter.AlwaysEvent[K, V]{}
	cm.backL.priming = false
	cm.back.AddFilterListener(cm.filterL, cm.backL, false)
	cm.strategyCurrent.Store(int32(StrategyAll))
	cm.cfg.logger.Info("invalidation strategy promoted", "from", "present", "to", "all")
}

func (cm *CachingMap[K, V]) dropKeyListeners() {
	cm.keyMu.Lock()
	keys := make([]K, 0, len(cm.keyRegs))
	for k := range cm.keyRegs {
		keys = append(keys, k)
	}
	cm.keyRegs = make(map[K]struct{})
	cm.keyMu.Unlock()
	for _, k := range keys {
		cm.back.RemoveKeyListener(k, cm.backL)
	}
}

func (cm *CachingMap[K, V]) truncateFront() {
	if t, ok := cm.front.(Truncatable); ok {
		t.Truncate()
		return
	}
	cm.front.Clear()
}

// Release detaches every listener this CachingMap installed on the
// back and clears the front; every subsequent operation fails with
// illegal-state. Idempotent.
func (cm *CachingMap[K, V]) Release() {
	if !cm.released.CompareAndSwap(false, true) {
		return
	}
	cm.dropKeyListeners()
	if cm.filterL != nil {
		cm.back.RemoveFilterListener(cm.filterL, cm.backL)
		cm.filterL = nil
	}
	cm.truncateFront()
	cm.cfg.logger.V(1).Info("cachingmap released")
}

// Destroy releases this CachingMap and additionally requests back
// destruction when the back supports it.
func (cm *CachingMap[K, V]) Destroy() {
	wasLive := !cm.released.Load()
	cm.Release()
	if !wasLive {
		return
	}
	if d, ok := cm.back.(Destroyer); ok {
		d.Destroy()
	}
}

var _ listener.SynchronousCapable = (*invalidationListener[string, int])(nil)
var _ listener.PrimingCapable = (*invalidationListener[string, int])(nil)
var _ namedcache.DeactivationListener = (*deactivationListener[string, int])(nil)
