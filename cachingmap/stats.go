package cachingmap

import "go.uber.org/atomic"

// Stats is a snapshot of CachingMap counters.
type Stats struct {
	// Hits and Misses count front-tier lookups.
	Hits   uint64
	Misses uint64
	// InvalidationHits counts back events that found (and removed) a
	// front entry; InvalidationMisses counts events whose key the
	// front no longer held.
	InvalidationHits   uint64
	InvalidationMisses uint64
	// ListenerRegistrations counts per-key listener installs (the
	// cost the auto strategy watches).
	ListenerRegistrations uint64
}

type statCounters struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	invHits       atomic.Uint64
	invMisses     atomic.Uint64
	registrations atomic.Uint64
}

func (s *statCounters) snapshot() Stats {
	return Stats{
		Hits:                  s.hits.Load(),
		Misses:                s.misses.Load(),
		InvalidationHits:      s.invHits.Load(),
		InvalidationMisses:    s.invMisses.Load(),
		ListenerRegistrations: s.registrations.Load(),
	}
}
