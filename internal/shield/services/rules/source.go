package rules

import (
	"fmt"
	"strings"

	"github.com/haukened/rr-shield/internal/shield/domain"
)

// Selector picks the part of a dataset a ruleset is generated from.
type Selector interface {
	Select(ds *domain.TrackerDataSet) *domain.TrackerDataSet
	String() string
}

// RulesetSource is one managed ruleset.
type RulesetSource struct {
	Name     string
	Selector Selector
}

// DefaultRulesetName is the ruleset managed when nothing else is configured.
const DefaultRulesetName = "TrackerDataSet"

// DefaultSources returns the single default ruleset over every tracker.
func DefaultSources() []RulesetSource {
	return []RulesetSource{{Name: DefaultRulesetName, Selector: All{}}}
}

// All selects every tracker.
type All struct{}

func (All) Select(ds *domain.TrackerDataSet) *domain.TrackerDataSet { return ds }
func (All) String() string                                          { return "all" }

// Category selects trackers carrying Label.
type Category struct {
	Label string
}

// Select returns a dataset sharing ds's entity, domain and cname maps with
// only the matching trackers.
func (c Category) Select(ds *domain.TrackerDataSet) *domain.TrackerDataSet {
	out := &domain.TrackerDataSet{
		Trackers: make(map[string]domain.Tracker),
		Entities: ds.Entities,
		Domains:  ds.Domains,
		CNAMEs:   ds.CNAMEs,
	}
	for host, t := range ds.Trackers {
		if t.HasCategory(c.Label) {
			out.Trackers[host] = t
		}
	}
	return out
}

func (c Category) String() string { return "category:" + c.Label }

// ParseSelector parses "all" or "category:<label>".
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "all" {
		return All{}, nil
	}
	if label, ok := strings.CutPrefix(s, "category:"); ok && strings.TrimSpace(label) != "" {
		return Category{Label: strings.TrimSpace(label)}, nil
	}
	return nil, fmt.Errorf("unsupported selector %q", s)
}

// NewSource builds a RulesetSource from a name and selector string.
func NewSource(name, selector string) (RulesetSource, error) {
	if strings.TrimSpace(name) == "" {
		return RulesetSource{}, fmt.Errorf("ruleset name must not be empty")
	}
	sel, err := ParseSelector(selector)
	if err != nil {
		return RulesetSource{}, fmt.Errorf("ruleset %q: %w", name, err)
	}
	return RulesetSource{Name: name, Selector: sel}, nil
}
