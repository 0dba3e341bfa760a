package trackerdata

import (
	"github.com/haukened/rr-shield/internal/shield/common/utils"
	"github.com/haukened/rr-shield/internal/shield/domain"
)

// FindEntityForHost returns the entity owning host. The host is resolved
// through CNAME aliases first; see resolve for the precedence rules.
func (m *Manager) FindEntityForHost(host string) (domain.Entity, bool) {
	s := m.current.Load()
	r := m.resolve(s, utils.CanonicalHost(host))
	if r.Entity == "" {
		return domain.Entity{}, false
	}
	e, ok := s.ds.Entities[r.Entity]
	return e, ok
}

// FindEntityByName returns the entity registered under name.
func (m *Manager) FindEntityByName(name string) (domain.Entity, bool) {
	e, ok := m.current.Load().ds.Entities[name]
	return e, ok
}

// FindTracker returns the most specific tracker entry for host.
func (m *Manager) FindTracker(host string) (domain.Tracker, bool) {
	s := m.current.Load()
	r := m.resolve(s, utils.CanonicalHost(host))
	if r.Tracker == "" {
		return domain.Tracker{}, false
	}
	t, ok := s.ds.Trackers[r.Tracker]
	return t, ok
}

// IsMajorTracker reports whether the entity owning host has a prevalence
// above MajorTrackerThreshold.
func (m *Manager) IsMajorTracker(host string) bool {
	e, ok := m.FindEntityForHost(host)
	return ok && e.Prevalence > MajorTrackerThreshold
}

// Category returns the classification label of the tracker matching host.
func (m *Manager) Category(host string) (string, bool) {
	t, ok := m.FindTracker(host)
	if !ok || t.Category() == "" {
		return "", false
	}
	return t.Category(), true
}

// AmbiguousLookups counts resolutions where the CNAME target and the host
// itself matched different entities.
func (m *Manager) AmbiguousLookups() uint64 { return m.ambiguous.Load() }

// resolve maps a canonical host to its entity and tracker keys.
//
// Precedence:
//  1. an exact domains/trackers key equal to host is authoritative;
//  2. otherwise the CNAME-resolved host is matched (suffix walk);
//  3. otherwise host itself is matched (suffix walk).
//
// When the alias and the host match different entities the alias wins and
// the disagreement is counted.
func (m *Manager) resolve(s *snapshot, host string) Match {
	if host == "" {
		return Match{Gen: s.gen}
	}
	if m.cache != nil {
		if hit, ok := m.cache.Get(host); ok && hit.Gen == s.gen {
			return hit
		}
	}

	res := Match{Gen: s.gen}
	direct := m.match(s, host)
	target, err := m.chase(s.ds.CNAMEs, host)
	if err != nil || target == host {
		res.Entity, res.Tracker = direct.Entity, direct.Tracker
	} else {
		res.Via = target
		alias := m.match(s, target)
		res.Entity = pick(s.ds.Domains, host, direct.Entity, alias.Entity)
		res.Tracker = pickTracker(s.ds.Trackers, host, direct.Tracker, alias.Tracker)
		if alias.Entity != "" && direct.Entity != "" && alias.Entity != direct.Entity {
			m.ambiguous.Add(1)
			m.logger.Debug(map[string]any{
				"host":          host,
				"cname":         target,
				"alias_entity":  alias.Entity,
				"direct_entity": direct.Entity,
				"chosen":        res.Entity,
			}, "Ambiguous tracker match")
		}
	}

	if m.cache != nil {
		m.cache.Put(host, res)
	}
	return res
}

func pick(keys map[string]string, host, direct, alias string) string {
	if _, exact := keys[host]; exact || alias == "" {
		return direct
	}
	return alias
}

func pickTracker(keys map[string]domain.Tracker, host, direct, alias string) string {
	if _, exact := keys[host]; exact || alias == "" {
		return direct
	}
	return alias
}

// match walks host's suffixes down to its owner domain and returns the
// most specific entity and tracker keys. The bloom filter skips suffixes that
// are definitely absent from both maps.
func (m *Manager) match(s *snapshot, host string) Match {
	var out Match
	for _, cand := range utils.HostSuffixes(host) {
		if s.bloom != nil && !s.bloom.MightContain([]byte(cand)) {
			continue
		}
		if out.Entity == "" {
			if name, ok := s.ds.Domains[cand]; ok {
				out.Entity = name
			}
		}
		if out.Tracker == "" {
			if _, ok := s.ds.Trackers[cand]; ok {
				out.Tracker = cand
			}
		}
		if out.Entity != "" && out.Tracker != "" {
			break
		}
	}
	return out
}
