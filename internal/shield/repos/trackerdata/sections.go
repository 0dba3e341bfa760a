package trackerdata

import (
	"cmp"
	"slices"

	"github.com/haukened/rr-shield/internal/shield/common/utils"
)

// NetworkRow is one detected tracker host within a network section.
type NetworkRow struct {
	Host     string
	Category string
	Count    int
}

// NetworkSection groups detected tracker hosts by owning entity.
type NetworkSection struct {
	Name  string // entity display name
	Major bool
	Rows  []NetworkRow
}

// NetworkSections groups detected hosts (host → request count) by owning
// entity. Hosts without an entity are skipped; with majorOnly only major
// entities are kept. Sections are sorted by name and rows by host.
func (m *Manager) NetworkSections(detected map[string]int, majorOnly bool) []NetworkSection {
	byName := map[string]*NetworkSection{}
	for raw, count := range detected {
		host := utils.CanonicalHost(raw)
		e, ok := m.FindEntityForHost(host)
		if !ok {
			continue
		}
		major := e.Prevalence > MajorTrackerThreshold
		if majorOnly && !major {
			continue
		}
		sec, ok := byName[e.DisplayName]
		if !ok {
			sec = &NetworkSection{Name: e.DisplayName, Major: major}
			byName[e.DisplayName] = sec
		}
		cat, _ := m.Category(host)
		sec.Rows = append(sec.Rows, NetworkRow{Host: host, Category: cat, Count: count})
	}

	out := make([]NetworkSection, 0, len(byName))
	for _, sec := range byName {
		slices.SortFunc(sec.Rows, func(a, b NetworkRow) int { return cmp.Compare(a.Host, b.Host) })
		sec.Rows = slices.CompactFunc(sec.Rows, func(a, b NetworkRow) bool {
			return a.Host == b.Host
		})
		out = append(out, *sec)
	}
	slices.SortFunc(out, func(a, b NetworkSection) int { return cmp.Compare(a.Name, b.Name) })
	return out
}
