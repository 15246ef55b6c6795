package safemap

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMap() *Map[string, int] {
	return New[string, int](StringHash, 4, 0.75, 2)
}

func TestPutGetRemove(t *testing.T) {
	m := newTestMap()
	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Put("a", 1)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	old, existed := m.Put("a", 2)
	assert.True(t, existed)
	assert.Equal(t, 1, old)

	v, _ = m.Get("a")
	assert.Equal(t, 2, v)

	removed, ok := m.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, 2, removed)

	_, ok = m.Get("a")
	assert.False(t, ok)
}

// TestResizeDuringIteration: an iterator created before a
// resize still yields exactly the keys present at its creation.
func TestResizeDuringIteration(t *testing.T) {
	m := New[string, int](StringHash, 4, 0.75, 2)
	for i := 0; i < 8; i++ {
		m.Put(fmt.Sprintf("k%d", i), i)
	}

	it := m.NewIterator()

	m.Put("k8", 8) // triggers growth

	seen := map[string]bool{}
	for it.Next() {
		e := it.Entry()
		seen[e.Key] = true
	}
	it.Close()

	assert.Len(t, seen, 8)
	for i := 0; i < 8; i++ {
		assert.True(t, seen[fmt.Sprintf("k%d", i)])
	}
}

func TestResizeTriggeredAtThreshold(t *testing.T) {
	m := New[string, int](StringHash, 4, 1.0, 2)
	for i := 0; i < 5; i++ {
		m.Put(fmt.Sprintf("k%d", i), i)
	}
	before := len(*m.buckets.Load())
	m.Put("k5", 5) // 6th entry exceeds buckets(5: 4 rounded up to a prime)*loadFactor(1.0)=5
	after := len(*m.buckets.Load())
	assert.Greater(t, after, before)
}

func TestConcurrentAccess(t *testing.T) {
	m := newTestMap()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%10)
			m.Put(key, i)
			m.Get(key)
		}(i)
	}
	wg.Wait()
}

func TestForEachVisitsAll(t *testing.T) {
	m := newTestMap()
	want := map[string]int{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		m.Put(k, v)
	}
	got := map[string]int{}
	m.ForEach(func(k string, v int) bool {
		got[k] = v
		return true
	})
	assert.Equal(t, want, got)
}
