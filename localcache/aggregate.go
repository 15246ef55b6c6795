package localcache

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Krishna8167/coherentcache/filter"
)

// EntryAggregator folds a set of entries into a single, read-only
// result.
type EntryAggregator[K comparable, V any] interface {
	Aggregate(entries []EntrySnap[K, V]) any
}

// ParallelAware aggregators can split the fold: each partition runs
// GetParallelAggregator's instance and AggregateResults combines the
// partials.
type ParallelAware[K comparable, V any] interface {
	EntryAggregator[K, V]
	GetParallelAggregator() EntryAggregator[K, V]
	AggregateResults(partials []any) any
}

// AggregatorFunc adapts a function to EntryAggregator.
type AggregatorFunc[K comparable, V any] func(entries []EntrySnap[K, V]) any

func (f AggregatorFunc[K, V]) Aggregate(entries []EntrySnap[K, V]) any { return f(entries) }

// aggregateParallelism caps the partition count for parallel-aware
// aggregators.
const aggregateParallelism = 4

// Aggregate folds agg over the entries currently present for keys.
func (c *Cache[K, V]) Aggregate(keys []K, agg EntryAggregator[K, V]) any {
	entries := make([]EntrySnap[K, V], 0, len(keys))
	for _, k := range keys {
		if v, ok := c.getLocal(k); ok {
			entries = append(entries, EntrySnap[K, V]{Key: k, Value: v})
		}
	}
	return c.aggregate(entries, agg)
}

// AggregateFilter folds agg over every entry matching f.
func (c *Cache[K, V]) AggregateFilter(f filter.Filter[V], agg EntryAggregator[K, V]) any {
	return c.aggregate(c.EntrySet(f, nil), agg)
}

func (c *Cache[K, V]) aggregate(entries []EntrySnap[K, V], agg EntryAggregator[K, V]) any {
	pa, ok := agg.(ParallelAware[K, V])
	if !ok || len(entries) < 2 {
		return agg.Aggregate(entries)
	}

	parts := aggregateParallelism
	if parts > len(entries) {
		parts = len(entries)
	}
	chunk := (len(entries) + parts - 1) / parts
	parts = (len(entries) + chunk - 1) / chunk

	partials := make([]any, parts)
	var g errgroup.Group
	for i := 0; i < parts; i++ {
		i := i
		lo, hi := i*chunk, (i+1)*chunk
		if hi > len(entries) {
			hi = len(entries)
		}
		g.Go(func() error {
			partials[i] = pa.GetParallelAggregator().Aggregate(entries[lo:hi])
			return nil
		})
	}
	_ = g.Wait()
	return pa.AggregateResults(partials)
}

// Count aggregates the number of entries; parallel-aware so it also
// exercises the partition/combine split.
type Count[K comparable, V any] struct{}

func (Count[K, V]) Aggregate(entries []EntrySnap[K, V]) any { return len(entries) }

func (a Count[K, V]) GetParallelAggregator() EntryAggregator[K, V] { return a }

func (Count[K, V]) AggregateResults(partials []any) any {
	total := 0
	for _, p := range partials {
		if n, ok := p.(int); ok {
			total += n
		}
	}
	return total
}

// GroupAggregator groups entries by Extract's result and folds Inner
// over each group, returning group -> result.
type GroupAggregator[K comparable, V any] struct {
	Extract func(V) any
	Inner   EntryAggregator[K, V]
}

func (ga GroupAggregator[K, V]) Aggregate(entries []EntrySnap[K, V]) any {
	groups := make(map[any][]EntrySnap[K, V])
	for _, e := range entries {
		g := ga.Extract(e.Value)
		groups[g] = append(groups[g], e)
	}
	out := make(map[any]any, len(groups))
	var mu sync.Mutex
	var wg errgroup.Group
	for g, es := range groups {
		g, es := g, es
		wg.Go(func() error {
			r := ga.Inner.Aggregate(es)
			mu.Lock()
			out[g] = r
			mu.Unlock()
			return nil
		})
	}
	_ = wg.Wait()
	return out
}

// GetParallelAggregator returns a per-partition grouping aggregator.
func (ga GroupAggregator[K, V]) GetParallelAggregator() EntryAggregator[K, V] { return ga }

// AggregateResults merges per-partition group maps. Inner results for
// a group split across partitions are combined with Inner's own
// AggregateResults when Inner is parallel-aware; otherwise the last
// partial wins.
func (ga GroupAggregator[K, V]) AggregateResults(partials []any) any {
	merged := make(map[any][]any)
	for _, p := range partials {
		m, ok := p.(map[any]any)
		if !ok {
			continue
		}
		for g, r := range m {
			merged[g] = append(merged[g], r)
		}
	}
	out := make(map[any]any, len(merged))
	innerPA, innerParallel := ga.Inner.(ParallelAware[K, V])
	for g, rs := range merged {
		if len(rs) == 1 {
			out[g] = rs[0]
			continue
		}
		if innerParallel {
			out[g] = innerPA.AggregateResults(rs)
		} else {
			out[g] = rs[len(rs)-1]
		}
	}
	return out
}
