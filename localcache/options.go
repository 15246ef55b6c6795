package localcache

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-logr/logr"

	"github.com/Krishna8167/coherentcache/namedcache"
)

// Option configures a Cache at construction time. New takes only a
// variadic Option list, so adding a knob never breaks existing
// callers.
type Option[K comparable, V any] func(*config[K, V])

type config[K comparable, V any] struct {
	highUnits    int64
	lowUnits     int64
	policy       EvictionPolicy
	expiryMillis int64

	initialBuckets int
	loadFactor     float64
	growthRate     float64

	loader namedcache.CacheLoader[K, V]
	store  namedcache.CacheStore[K, V]

	lockingEnforced bool
	waitMillis      time.Duration

	cleanupInterval time.Duration
	unitsOf         func(V) int64

	logger logr.Logger
	clock  clock.Clock
	hash   func(any) uint32
}

func defaultConfig[K comparable, V any]() *config[K, V] {
	return &config[K, V]{
		highUnits:       0, // 0 = unbounded
		policy:          LRU,
		expiryMillis:    -1, // never, unless overridden
		loadFactor:      0.75,
		growthRate:      2,
		waitMillis:      -1, // wait indefinitely by default
		cleanupInterval: time.Minute,
		unitsOf:         func(V) int64 { return 1 },
		logger:          logr.Discard(),
		clock:           clock.New(),
		hash:            anyHash,
	}
}

// WithHighUnits sets the eviction trigger; LowUnits defaults to 75% of
// it unless WithLowUnits is also given.
func WithHighUnits[K comparable, V any](units int64) Option[K, V] {
	return func(c *config[K, V]) { c.highUnits = units }
}

// WithLowUnits overrides the prune level eviction targets.
func WithLowUnits[K comparable, V any](units int64) Option[K, V] {
	return func(c *config[K, V]) { c.lowUnits = units }
}

// WithEvictionPolicy selects LRU, LFU or Hybrid.
func WithEvictionPolicy[K comparable, V any](p EvictionPolicy) Option[K, V] {
	return func(c *config[K, V]) { c.policy = p }
}

// WithExpiryMillis sets the cache-wide default TTL in milliseconds; 0
// disables expiry, used per-entry when an entry's own expiryMillis is
// unset.
func WithExpiryMillis[K comparable, V any](ms int64) Option[K, V] {
	return func(c *config[K, V]) { c.expiryMillis = ms }
}

// WithExpiry is WithExpiryMillis taking a time.Duration.
func WithExpiry[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.expiryMillis = d.Milliseconds() }
}

// WithBucketSizing records SafeHashMap-style bucket sizing in the
// config. Cache keeps its entries in a built-in Go map, which does not
// read these values, so they have no effect on storage.
func WithBucketSizing[K comparable, V any](initialBuckets int, loadFactor, growthRate float64) Option[K, V] {
	return func(c *config[K, V]) {
		c.initialBuckets = initialBuckets
		c.loadFactor = loadFactor
		c.growthRate = growthRate
	}
}

// WithLoader installs a CacheLoader consulted on a Get miss.
func WithLoader[K comparable, V any](l namedcache.CacheLoader[K, V]) Option[K, V] {
	return func(c *config[K, V]) { c.loader = l }
}

// WithStore installs a write-through CacheStore.
func WithStore[K comparable, V any](s namedcache.CacheStore[K, V]) Option[K, V] {
	return func(c *config[K, V]) { c.store = s }
}

// WithLockingEnforced requires every mutation to hold the key's lock
// first. Put and Remove on a key that nobody holds do not wait for the
// lock: they change nothing and return (zero, false), with no error.
func WithLockingEnforced[K comparable, V any](waitMillis time.Duration) Option[K, V] {
	return func(c *config[K, V]) {
		c.lockingEnforced = true
		c.waitMillis = waitMillis
	}
}

// WithCleanupInterval sets the janitor's active-expiration sweep
// period; 0 disables the janitor entirely.
func WithCleanupInterval[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.cleanupInterval = d }
}

// WithUnitCost supplies a function computing a value's unit cost; the
// default is a constant 1 unit per entry.
func WithUnitCost[K comparable, V any](f func(V) int64) Option[K, V] {
	return func(c *config[K, V]) { c.unitsOf = f }
}

// WithLogger attaches a logr.Logger; evictions and janitor expiry
// sweeps are logged at V(1), never on the hot read path.
func WithLogger[K comparable, V any](l logr.Logger) Option[K, V] {
	return func(c *config[K, V]) { c.logger = l }
}

// WithClock overrides the time source (clock.NewMock() makes TTL,
// janitor and eviction tests deterministic).
func WithClock[K comparable, V any](clk clock.Clock) Option[K, V] {
	return func(c *config[K, V]) { c.clock = clk }
}

// WithKeyHash overrides the key hash used for entry keyHash metadata
// and as the stable paging fallback ordering.
func WithKeyHash[K comparable, V any](h func(any) uint32) Option[K, V] {
	return func(c *config[K, V]) { c.hash = h }
}
