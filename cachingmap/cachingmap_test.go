package cachingmap

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krishna8167/coherentcache/cacheerr"
	"github.com/Krishna8167/coherentcache/internal/safemap"
	"github.com/Krishna8167/coherentcache/localcache"
	"github.com/Krishna8167/coherentcache/namedcache"
)

func newStack(t *testing.T, opts ...Option[string, string]) (*CachingMap[string, string], *localcache.Cache[string, string], *namedcache.InMemoryCache[string, string]) {
	t.Helper()
	back := namedcache.NewInMemoryCache[string, string](safemap.StringHash)
	front := localcache.New[string, string](localcache.WithCleanupInterval[string, string](0))
	t.Cleanup(front.Stop)
	cm := New[string, string](front, back, opts...)
	t.Cleanup(cm.Release)
	return cm, front, back
}

// TestPutThenGet pins the core linearizability property: a successful
// put with no later mutation means the next get returns that value,
// served from the front.
func TestPutThenGet(t *testing.T) {
	cm, front, _ := newStack(t, WithStrategy[string, string](StrategyPresent))

	require.NoError(t, cm.Put("a", "1"))

	v, ok, err := cm.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// the write populated the front; the read was a front hit
	_, inFront := front.Get("a")
	assert.True(t, inFront)
	assert.Equal(t, uint64(1), cm.Stats().Hits)
}

func TestGetReadThroughPopulatesFront(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	back.Put("a", "1")

	v, ok, err := cm.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, inFront := front.Get("a")
	assert.True(t, inFront)
	assert.Equal(t, uint64(1), cm.Stats().ListenerRegistrations)

	// a second get never reaches the back
	v, ok, err = cm.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, uint64(1), cm.Stats().Hits)
}

func TestGetMissingKey(t *testing.T) {
	cm, front, _ := newStack(t, WithStrategy[string, string](StrategyPresent))

	_, ok, err := cm.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, front.ContainsKey("missing"))
}

// TestInvalidationPresent: a direct back mutation
// invalidates the front entry, and the next get observes the new
// value. No read ever returns an absent value for a present key.
func TestInvalidationPresent(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	back.Put("a", "1")

	v, _, err := cm.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	back.Put("a", "2") // external change; listener invalidates front

	assert.False(t, front.ContainsKey("a"), "front entry must be invalidated")
	assert.Equal(t, uint64(1), cm.Stats().InvalidationHits)

	v, ok, err := cm.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestInvalidationRace(t *testing.T) {
	cm, _, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	back.Put("a", "1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			v, ok, err := cm.Get("a")
			if err == nil && ok {
				assert.NotEmpty(t, v)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			back.Put("a", fmt.Sprintf("%d", i))
		}
	}()
	wg.Wait()

	v, ok, err := cm.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "199", v, "final read must observe the last back write")
}

func TestInvalidationAll(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyAll))

	require.NoError(t, cm.Put("a", "1"))
	require.NoError(t, cm.Put("b", "2"))
	assert.Zero(t, cm.Stats().ListenerRegistrations, "all uses no key listeners")

	back.Put("a", "changed")
	assert.False(t, front.ContainsKey("a"))
	assert.True(t, front.ContainsKey("b"))
}

// TestInvalidationLogical checks that synthetic back events (expiry,
// eviction) do not invalidate the front, while real changes do.
func TestInvalidationLogical(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyLogical))

	require.NoError(t, cm.Put("a", "1"))
	back.PutWithTTL("b", "2", 50*time.Millisecond)
	_, ok, err := cm.Get("b") // populate the front (no front-side TTL)
	require.NoError(t, err)
	require.True(t, ok)

	// expire "b" in the back: the resulting event is synthetic and
	// must be filtered out before reaching the invalidation listener
	time.Sleep(100 * time.Millisecond)
	_, ok = back.Get("b")
	assert.False(t, ok)
	assert.True(t, front.ContainsKey("b"), "synthetic expiry must not invalidate under logical")

	back.Put("a", "changed")
	assert.False(t, front.ContainsKey("a"), "real change must invalidate")
}

func TestStrategyNone(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyNone))

	require.NoError(t, cm.Put("a", "1"))
	back.Put("a", "changed")

	// no listener: the stale front value persists until its own expiry
	assert.True(t, front.ContainsKey("a"))
	v, _, err := cm.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestAutoPromotion(t *testing.T) {
	cm, front, back := newStack(t,
		WithStrategy[string, string](StrategyAuto),
		WithPromotionThreshold[string, string](3),
	)
	assert.Equal(t, StrategyPresent, cm.CurrentStrategy())

	for i := 0; i < 5; i++ {
		back.Put(fmt.Sprintf("k%d", i), "v")
	}
	for i := 0; i < 5; i++ {
		_, _, err := cm.Get(fmt.Sprintf("k%d", i))
		require.NoError(t, err)
	}

	assert.Equal(t, StrategyAll, cm.CurrentStrategy())
	assert.Equal(t, StrategyAuto, cm.Strategy())

	// promoted coherence still works without key listeners
	_, _, err := cm.Get("k0")
	require.NoError(t, err)
	back.Put("k0", "changed")
	assert.False(t, front.ContainsKey("k0"))
}

func TestPutReturning(t *testing.T) {
	cm, _, _ := newStack(t, WithStrategy[string, string](StrategyPresent))

	_, existed, err := cm.PutReturning("a", "1")
	require.NoError(t, err)
	assert.False(t, existed)

	old, existed, err := cm.PutReturning("a", "2")
	require.NoError(t, err)
	require.True(t, existed)
	assert.Equal(t, "1", old)
}

func TestRemove(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	require.NoError(t, cm.Put("a", "1"))

	old, existed, err := cm.Remove("a")
	require.NoError(t, err)
	require.True(t, existed)
	assert.Equal(t, "1", old)
	assert.False(t, front.ContainsKey("a"))
	assert.False(t, back.ContainsKey("a"))
}

func TestGetAll(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	back.PutAll(map[string]string{"a": "1", "b": "2", "c": "3"})

	require.NoError(t, cm.Put("a", "front"))

	out, err := cm.GetAll([]string{"a", "b", "c", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "front", "b": "2", "c": "3"}, out)

	// the batch populated the front
	assert.True(t, front.ContainsKey("b"))
	assert.True(t, front.ContainsKey("c"))

	// second batch is all front hits
	before := cm.Stats().Misses
	_, err = cm.GetAll([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, before, cm.Stats().Misses)
}

func TestPutAll(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyPresent))

	require.NoError(t, cm.PutAll(map[string]string{"a": "1", "b": "2"}))

	v, ok := back.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.True(t, front.ContainsKey("a"))
	assert.True(t, front.ContainsKey("b"))
}

func TestGetAllFallsBackWhenLocked(t *testing.T) {
	cm, _, back := newStack(t,
		WithStrategy[string, string](StrategyPresent),
		WithControlWait[string, string](10*time.Millisecond),
	)
	back.PutAll(map[string]string{"a": "1", "b": "2"})

	// hold one control entry so the batch lock times out
	require.Equal(t, namedcache.Acquired, cm.ctl.Lock("b", 0))
	done := make(chan map[string]string, 1)
	go func() {
		out, err := cm.GetAll([]string{"a", "b"})
		assert.NoError(t, err)
		done <- out
	}()
	time.Sleep(50 * time.Millisecond)
	cm.ctl.Unlock("b")

	out := <-done
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, out)
}

func TestReleasedFailsEverything(t *testing.T) {
	cm, _, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	require.NoError(t, cm.Put("a", "1"))

	cm.Release()

	_, _, err := cm.Get("a")
	assert.True(t, errors.Is(err, cacheerr.ErrIllegalState))
	assert.True(t, errors.Is(cm.Put("a", "2"), cacheerr.ErrIllegalState))
	_, _, err = cm.Remove("a")
	assert.True(t, errors.Is(err, cacheerr.ErrIllegalState))
	_, err = cm.GetAll([]string{"a"})
	assert.True(t, errors.Is(err, cacheerr.ErrIllegalState))
	assert.Nil(t, cm.Front())

	// release detached the key listener: direct back writes no longer
	// reach this CachingMap
	before := cm.Stats().InvalidationHits
	back.Put("a", "3")
	assert.Equal(t, before, cm.Stats().InvalidationHits)
}

func TestBackDestroyReleasesFront(t *testing.T) {
	cm, _, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	require.NoError(t, cm.Put("a", "1"))

	back.Destroy()

	_, _, err := cm.Get("a")
	assert.True(t, errors.Is(err, cacheerr.ErrIllegalState))
}

func TestBackTruncateClearsFrontSilently(t *testing.T) {
	cm, front, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	require.NoError(t, cm.Put("a", "1"))
	require.True(t, front.ContainsKey("a"))

	back.TruncateCache()

	assert.False(t, front.ContainsKey("a"))
	// the map stays usable after a truncate
	require.NoError(t, cm.Put("b", "2"))
	v, ok, err := cm.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestDestroyRequestsBackDestruction(t *testing.T) {
	cm, _, back := newStack(t, WithStrategy[string, string](StrategyPresent))
	cm.Destroy()
	assert.True(t, back.Destroyed())
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	cm, _, _ := newStack(t, WithStrategy[string, string](StrategyPresent))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (n+j)%8)
				assert.NoError(t, cm.Put(key, fmt.Sprintf("%d-%d", n, j)))
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (n+j)%8)
				_, _, err := cm.Get(key)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
}
