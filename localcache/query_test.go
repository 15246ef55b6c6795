package localcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krishna8167/coherentcache/filter"
)

func TestKeySetScan(t *testing.T) {
	c := newTestCache()
	c.Put("a", "apple")
	c.Put("b", "banana")
	c.Put("c", "avocado")

	keys := c.KeySet(filter.FuncFilter[string](func(v string) bool { return v[0] == 'a' }), "")
	assert.ElementsMatch(t, []string{"a", "c"}, keys)

	// nil selects all present keys; Always matches every value — both
	// see the full contents
	all := c.KeySet(nil, "")
	assert.Len(t, all, 3)
	assert.ElementsMatch(t, all, c.KeySet(filter.Always[string]{}, ""))
}

func TestIndexedQuery(t *testing.T) {
	c := newTestCache()
	c.AddIndex("firstLetter", func(v string) any { return v[:1] })

	c.Put("a", "apple")
	c.Put("b", "banana")
	c.Put("c", "avocado")

	f := EqualsFilter[string, string]{Extract: func(v string) any { return v[:1] }, Want: "a"}
	keys := c.KeySet(f, "firstLetter")
	assert.ElementsMatch(t, []string{"a", "c"}, keys)

	// index follows updates and removals
	c.Put("c", "cherry")
	keys = c.KeySet(f, "firstLetter")
	assert.ElementsMatch(t, []string{"a"}, keys)

	c.Remove("a")
	keys = c.KeySet(f, "firstLetter")
	assert.Empty(t, keys)
}

func TestEntrySetOrdered(t *testing.T) {
	c := newTestCache()
	c.Put("a", "3")
	c.Put("b", "1")
	c.Put("c", "2")

	entries := c.EntrySet(nil, func(x, y EntrySnap[string, string]) bool { return x.Value < y.Value })
	require.Len(t, entries, 3)
	assert.Equal(t, "1", entries[0].Value)
	assert.Equal(t, "3", entries[2].Value)
}

// TestEntryPageStable checks the paging contract: pages partition the
// result set without overlap, under the key-hash fallback ordering.
func TestEntryPageStable(t *testing.T) {
	c := newTestCache()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		c.Put(k, k)
	}

	var seen []string
	for page := 0; ; page++ {
		entries := c.EntryPage(nil, nil, 2, page)
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			seen = append(seen, e.Key)
		}
	}
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, seen)
	assert.Len(t, seen, 5, "pages must not overlap")
}
