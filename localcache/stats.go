package localcache

// Stats is a snapshot of Cache hit/miss/eviction counters. Every
// eviction policy counts against the same three buckets;
// policy-specific detail lives in EvictionPolicy, not here.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRatio returns Hits/(Hits+Misses), or 0 if there have been no
// lookups yet.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
