package convert

import (
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krishna8167/coherentcache/cacheerr"
	"github.com/Krishna8167/coherentcache/event"
	"github.com/Krishna8167/coherentcache/internal/safemap"
	"github.com/Krishna8167/coherentcache/namedcache"
	"github.com/Krishna8167/coherentcache/observable"
)

// intPair converts between front-space int and back-space string.
func intPair() Pair[int, string] {
	return Pair[int, string]{
		Up: func(s string) int {
			n, _ := strconv.Atoi(s)
			return n
		},
		Down: strconv.Itoa,
	}
}

func newBackedMap() (*Map[string, string, int, string], *observable.Map[string, string]) {
	under := observable.New[string, string](safemap.StringHash)
	m := NewMap[string, string, int, string](under, Identity[string](), intPair())
	return m, under
}

func TestMapRoundTrip(t *testing.T) {
	m, under := newBackedMap()

	_, existed := m.Put("a", 42)
	assert.False(t, existed)

	// the back sees the down-converted form
	raw, ok := under.Get("a")
	require.True(t, ok)
	assert.Equal(t, "42", raw)

	// up∘down is identity
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	old, existed := m.Put("a", 7)
	require.True(t, existed)
	assert.Equal(t, 42, old)

	removed, ok := m.Remove("a")
	require.True(t, ok)
	assert.Equal(t, 7, removed)
	assert.True(t, m.IsEmpty())
}

func TestMapBulkOps(t *testing.T) {
	m, _ := newBackedMap()
	m.PutAll(map[string]int{"a": 1, "b": 2, "c": 3})

	assert.Equal(t, 3, m.Size())
	out := m.GetAll([]string{"a", "c", "missing"})
	assert.Equal(t, map[string]int{"a": 1, "c": 3}, out)

	assert.ElementsMatch(t, []string{"a", "b", "c"}, m.Keys())
	assert.ElementsMatch(t, []int{1, 2, 3}, m.Values())
}

func TestCast(t *testing.T) {
	v, err := Cast[int](any(7))
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = Cast[int](any("not an int"))
	assert.True(t, errors.Is(err, cacheerr.ErrClassCast))
}

// TestLazyEventMemoizes checks that converter calls happen on first
// accessor use only.
func TestLazyEventMemoizes(t *testing.T) {
	var mu sync.Mutex
	upCalls := 0
	counting := Pair[int, string]{
		Up: func(s string) int {
			mu.Lock()
			upCalls++
			mu.Unlock()
			n, _ := strconv.Atoi(s)
			return n
		},
		Down: strconv.Itoa,
	}

	base := event.NewMapEvent[string, string](nil, event.Updated, "k", "1", "2", true, true)
	raw := event.NewCacheEvent(base, false, false, false, event.Transformable)
	lazy := NewLazyEvent(raw, Identity[string](), counting)

	assert.Zero(t, upCalls)

	nv, ok := lazy.NewValue()
	require.True(t, ok)
	assert.Equal(t, 2, nv)
	assert.Equal(t, 1, upCalls)

	// repeated access reuses the memoized conversion
	lazy.NewValue()
	lazy.NewValue()
	assert.Equal(t, 1, upCalls)

	ov, ok := lazy.OldValue()
	require.True(t, ok)
	assert.Equal(t, 1, ov)
	assert.Equal(t, 2, upCalls)
}

func TestLazyEventLiteValues(t *testing.T) {
	base := event.NewMapEvent[string, string](nil, event.Deleted, "k", "", "", false, false)
	raw := event.NewCacheEvent(base, false, false, false, event.Transformable)
	lazy := NewLazyEvent(raw, Identity[string](), intPair())

	_, ok := lazy.OldValue()
	assert.False(t, ok)
	_, ok = lazy.NewValue()
	assert.False(t, ok)
}

type frontRecorder struct {
	mu     sync.Mutex
	events []event.CacheEvent[string, int]
}

func (r *frontRecorder) rec(e event.CacheEvent[string, int]) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *frontRecorder) EntryInserted(e event.CacheEvent[string, int]) error { return r.rec(e) }
func (r *frontRecorder) EntryUpdated(e event.CacheEvent[string, int]) error  { return r.rec(e) }
func (r *frontRecorder) EntryDeleted(e event.CacheEvent[string, int]) error  { return r.rec(e) }

// TestListenerWrapper registers a front-space listener against a
// back-space observable map and checks events arrive converted.
func TestListenerWrapper(t *testing.T) {
	under := observable.New[string, string](safemap.StringHash)

	rec := &frontRecorder{}
	wrapped := NewListener[string, string, int, string](rec, Identity[string](), intPair(), nil)
	under.AddMapListener(wrapped)

	under.Put("k", "1")
	under.Put("k", "2")
	under.Remove("k")

	require.Len(t, rec.events, 3)
	assert.Equal(t, event.Inserted, rec.events[0].ID)
	assert.Equal(t, 1, rec.events[0].NewValue)
	assert.Equal(t, event.Updated, rec.events[1].ID)
	assert.Equal(t, 1, rec.events[1].OldValue)
	assert.Equal(t, 2, rec.events[1].NewValue)
	assert.Equal(t, event.Deleted, rec.events[2].ID)
	assert.Equal(t, 2, rec.events[2].OldValue)
}

var _ namedcache.CacheMap[string, int] = (*Map[string, string, int, string])(nil)
