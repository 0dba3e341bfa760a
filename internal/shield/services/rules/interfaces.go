package rules

import (
	"context"

	"github.com/haukened/rr-shield/internal/shield/domain"
)

// Compiler turns generated rules into a native artifact.
type Compiler interface {
	Compile(ctx context.Context, name string, rules []domain.BlockerRule) (domain.RuleArtifact, error)
}

// TrackerData provides the current dataset and its version tag as one pair.
type TrackerData interface {
	Current() (*domain.TrackerDataSet, string)
}

// ProtectionSource provides the protection lists in effect.
type ProtectionSource interface {
	Lists() domain.ProtectionLists
}

// Metrics records compile pipeline activity.
type Metrics interface {
	// ObserveCompile records one compile attempt for ruleset. outcome is one
	// of "compiled", "cached", "unchanged" or "failed".
	ObserveCompile(ruleset, outcome string, seconds float64)
	// SetRules sets the rule count of the ruleset's current artifact.
	SetRules(ruleset string, n int)
	// IncPublished counts one emitted UpdateEvent.
	IncPublished(tokens int)
}

// EmptyMetrics is a Metrics that records nothing.
type EmptyMetrics struct{}

func (EmptyMetrics) ObserveCompile(string, string, float64) {}
func (EmptyMetrics) SetRules(string, int)                   {}
func (EmptyMetrics) IncPublished(int)                       {}
