package refcache

import "sync/atomic"

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Loads      uint64
	LoadErrors uint64
	Reclaimed  uint64
	Removals   uint64
}

type counters struct {
	hits       atomic.Uint64
	misses     atomic.Uint64
	loads      atomic.Uint64
	loadErrors atomic.Uint64
	reclaimed  atomic.Uint64
	removals   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Loads:      c.loads.Load(),
		LoadErrors: c.loadErrors.Load(),
		Reclaimed:  c.reclaimed.Load(),
		Removals:   c.removals.Load(),
	}
}
