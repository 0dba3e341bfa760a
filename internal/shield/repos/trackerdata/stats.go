package trackerdata

import "time"

// Stats reports the current snapshot and lookup counters.
// Values are best-effort snapshots and may be updated concurrently.
type Stats struct {
	Tag        string
	Generation uint64
	Fallback   bool
	LoadedAt   time.Time
	Trackers   int
	Entities   int
	Domains    int
	CNAMEs     int

	CacheHits        uint64
	CacheMisses      uint64
	CacheEvictions   uint64
	AmbiguousLookups uint64

	Store *StoreStats // nil without a store
}

// Stats returns a point-in-time view of the manager.
func (m *Manager) Stats() Stats {
	s := m.current.Load()
	st := Stats{
		Tag:              s.tag,
		Generation:       s.gen,
		Fallback:         s.fallback,
		LoadedAt:         s.loadedAt,
		AmbiguousLookups: m.ambiguous.Load(),
	}
	st.Trackers, st.Entities, st.Domains, st.CNAMEs = s.ds.Counts()
	if m.cache != nil {
		st.CacheHits, st.CacheMisses, st.CacheEvictions = m.cache.Stats()
	}
	if m.store != nil {
		ss := m.store.Stats()
		st.Store = &ss
	}
	return st
}
