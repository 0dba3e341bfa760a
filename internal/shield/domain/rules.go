package domain

import (
	"maps"
	"slices"
	"time"
)

// RuleArtifact is the opaque handle of a natively compiled ruleset.
// Consumers compare handles by identity to detect "no real change".
type RuleArtifact interface {
	// Name returns the ruleset name the artifact was compiled for.
	Name() string
	// RulesCount returns the number of compiled rules.
	RulesCount() int
}

// CompiledRules is the result of compiling one named ruleset.
type CompiledRules struct {
	Name               string
	Artifact           RuleArtifact
	Dataset            *TrackerDataSet
	EncodedTrackerData string // canonical JSON of Dataset, consumed by generated scripts
	ETag               string // tracker-data version tag
	Identifier         RuleIdentifier
	Protection         ProtectionLists // lists the artifact was compiled with
	Generation         uint64          // cache generation the artifact was stored under
	CompiledAt         time.Time
}

// CompletionToken is a caller-supplied marker confirming that the effects of
// a specific update request have been incorporated into a publish.
type CompletionToken string

// UpdateEvent is one entry of the rules manager's ordered event stream.
type UpdateEvent struct {
	Rules            map[string]*CompiledRules
	Changed          map[string]struct{}
	CompletionTokens []CompletionToken
}

// HasRules reports whether at least one ruleset has been compiled.
func (e UpdateEvent) HasRules() bool { return len(e.Rules) > 0 }

// ChangedNames returns the names of rulesets that changed, sorted.
func (e UpdateEvent) ChangedNames() []string {
	return slices.Sorted(maps.Keys(e.Changed))
}

// Artifacts returns the artifact handle of every ruleset by name. Handles are
// copied by reference.
func (e UpdateEvent) Artifacts() map[string]RuleArtifact {
	out := make(map[string]RuleArtifact, len(e.Rules))
	for name, r := range e.Rules {
		out[name] = r.Artifact
	}
	return out
}

// ProtectionLists returns the lists of the most recently compiled ruleset,
// so anything derived from the event agrees with its artifacts. Ties go to
// the first name in sorted order.
func (e UpdateEvent) ProtectionLists() ProtectionLists {
	var latest *CompiledRules
	for _, name := range slices.Sorted(maps.Keys(e.Rules)) {
		r := e.Rules[name]
		if r == nil {
			continue
		}
		if latest == nil || r.CompiledAt.After(latest.CompiledAt) {
			latest = r
		}
	}
	if latest == nil {
		return ProtectionLists{}
	}
	return latest.Protection
}

// WithoutTokens returns a shallow copy of the event with no completion
// tokens. The rules map is shared.
func (e UpdateEvent) WithoutTokens() UpdateEvent {
	return UpdateEvent{Rules: e.Rules, Changed: map[string]struct{}{}}
}
