package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of cache activity
type Stats struct {
	Backend string  `json:"backend"`
	State   string  `json:"state"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`  // Includes expired reads
	Expired int64   `json:"expired"` // Reads that found a record past its TTL
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	HitRate float64 `json:"hit_rate"` // Hits / (Hits + Misses)
}

type counters struct {
	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// Stats returns the current counters
func (c *Cache) Stats() Stats {
	s := Stats{
		Backend: c.store.Name(),
		State:   c.State().String(),
		Hits:    c.stats.hits.Load(),
		Misses:  c.stats.misses.Load(),
		Expired: c.stats.expired.Load(),
		Sets:    c.stats.sets.Load(),
		Deletes: c.stats.deletes.Load(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
