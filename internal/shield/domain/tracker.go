package domain

import (
	"fmt"
	"strings"
)

// DefaultAction defines what the blocker does with requests to a tracker that
// no explicit tracker rule matched.
//
// block  - requests are blocked on third-party loads
// ignore - requests are allowed unless an explicit rule blocks them
type DefaultAction uint8

const (
	// ActionBlock blocks third-party requests to the tracker.
	ActionBlock DefaultAction = iota
	// ActionIgnore allows requests unless a tracker rule says otherwise.
	ActionIgnore
)

// String returns a stable string representation of the action.
func (a DefaultAction) String() string {
	switch a {
	case ActionBlock:
		return "block"
	case ActionIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("DefaultAction(%d)", a)
	}
}

// ParseDefaultAction converts a string into a DefaultAction.
// Accepts: "block", "ignore" (case-insensitive).
func ParseDefaultAction(s string) (DefaultAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block":
		return ActionBlock, nil
	case "ignore":
		return ActionIgnore, nil
	default:
		return 0, fmt.Errorf("unsupported DefaultAction: %q", s)
	}
}

// Entity is an organisation owning one or more tracker domains.
type Entity struct {
	DisplayName string   // never empty once loaded
	Domains     []string // canonical domains owned by the entity
	Prevalence  float64  // in [0,1]
}

// Owner identifies the entity that owns a tracker.
type Owner struct {
	Name        string
	DisplayName string
}

// TrackerRule is an explicit per-path rule attached to a tracker.
type TrackerRule struct {
	Rule       string        // regular expression source over the request URL
	Action     DefaultAction // action applied when the rule matches
	Exceptions []string      // first-party domains the rule does not apply to
}

// Tracker describes a single known tracker domain.
type Tracker struct {
	Domain        string
	DefaultAction DefaultAction
	Owner         Owner
	Prevalence    float64
	Subdomains    []string
	Categories    []string
	Rules         []TrackerRule
}

// Category returns the tracker's primary classification label, or "" when it
// has none.
func (t Tracker) Category() string {
	if len(t.Categories) == 0 {
		return ""
	}
	return t.Categories[0]
}

// HasCategory reports whether label is one of the tracker's categories.
func (t Tracker) HasCategory(label string) bool {
	for _, c := range t.Categories {
		if strings.EqualFold(c, label) {
			return true
		}
	}
	return false
}

// TrackerDataSet is an immutable snapshot of tracker data.
//
// Notes:
//   - All keys are canonical (lower case, no trailing dot).
//   - Every value in Domains is a key of Entities.
//   - A dataset is replaced wholesale; callers must not mutate the maps.
type TrackerDataSet struct {
	Trackers map[string]Tracker // domain → tracker
	Entities map[string]Entity  // entity name → entity
	Domains  map[string]string  // domain → entity name
	CNAMEs   map[string]string  // alias → canonical domain
}

// EmptyTrackerDataSet returns a dataset with allocated, empty maps.
func EmptyTrackerDataSet() *TrackerDataSet {
	return &TrackerDataSet{
		Trackers: map[string]Tracker{},
		Entities: map[string]Entity{},
		Domains:  map[string]string{},
		CNAMEs:   map[string]string{},
	}
}

// Validate checks the structural invariants of the dataset.
func (ds *TrackerDataSet) Validate() error {
	if ds == nil {
		return fmt.Errorf("tracker data set must not be nil")
	}
	for name, e := range ds.Entities {
		if name == "" {
			return fmt.Errorf("entity name must not be empty")
		}
		if e.DisplayName == "" {
			return fmt.Errorf("entity %q: display name must not be empty", name)
		}
		if e.Prevalence < 0 || e.Prevalence > 1 {
			return fmt.Errorf("entity %q: prevalence %v out of range", name, e.Prevalence)
		}
	}
	for d, name := range ds.Domains {
		if _, ok := ds.Entities[name]; !ok {
			return fmt.Errorf("domain %q: unknown entity %q", d, name)
		}
	}
	return nil
}

// Counts returns the number of trackers, entities, domains and cnames.
func (ds *TrackerDataSet) Counts() (trackers, entities, domains, cnames int) {
	if ds == nil {
		return 0, 0, 0, 0
	}
	return len(ds.Trackers), len(ds.Entities), len(ds.Domains), len(ds.CNAMEs)
}
