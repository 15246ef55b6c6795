package cachingmap

import (
	"reflect"
	"time"

	"github.com/go-logr/logr"
)

// Option configures a CachingMap at construction time.
type Option[K comparable, V any] func(*config[K, V])

type config[K comparable, V any] struct {
	strategy Strategy

	// controlWait bounds the batch lock attempts in GetAll/PutAll;
	// per-key Get/Put always lock indefinitely.
	controlWait time.Duration

	// promotionThreshold is the cumulative key-listener registration
	// count at which auto promotes present -> all.
	promotionThreshold int64

	equals func(a, b V) bool

	logger logr.Logger
}

func defaultConfig[K comparable, V any]() *config[K, V] {
	return &config[K, V]{
		strategy:           StrategyAuto,
		controlWait:        250 * time.Millisecond,
		promotionThreshold: 1000,
		equals:             func(a, b V) bool { return reflect.DeepEqual(a, b) },
		logger:             logr.Discard(),
	}
}

// WithStrategy selects the invalidation strategy (default auto).
func WithStrategy[K comparable, V any](s Strategy) Option[K, V] {
	return func(c *config[K, V]) { c.strategy = s }
}

// WithControlWait bounds how long GetAll/PutAll wait for the batch of
// per-key control locks before falling back to per-key operations.
func WithControlWait[K comparable, V any](d time.Duration) Option[K, V] {
	return func(c *config[K, V]) { c.controlWait = d }
}

// WithPromotionThreshold sets the key-listener registration count at
// which the auto strategy promotes itself to all.
func WithPromotionThreshold[K comparable, V any](n int64) Option[K, V] {
	return func(c *config[K, V]) { c.promotionThreshold = n }
}

// WithValueEquals overrides the value equality used by the freshness
// checks (default reflect.DeepEqual).
func WithValueEquals[K comparable, V any](eq func(a, b V) bool) Option[K, V] {
	return func(c *config[K, V]) { c.equals = eq }
}

// WithLogger attaches a logr.Logger; a strategy promotion is logged at
// Info, deferred promotions and invalidation outcomes at V(1).
func WithLogger[K comparable, V any](l logr.Logger) Option[K, V] {
	return func(c *config[K, V]) { c.logger = l }
}
