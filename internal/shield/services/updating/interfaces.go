package updating

import (
	"github.com/haukened/rr-shield/internal/shield/domain"
)

// RulesSource is the ordered rules event stream.
type RulesSource interface {
	Updates() <-chan domain.UpdateEvent
}

// SettingsStore provides the settings generated scripts depend on.
type SettingsStore interface {
	Snapshot() domain.SettingsSnapshot
}

// ScriptBuilder builds a new script bundle on every call.
type ScriptBuilder interface {
	Build(snap domain.SettingsSnapshot, ev domain.UpdateEvent) (*domain.ScriptBundle, error)
}

// Metrics records publishes.
type Metrics interface {
	ObservePublish(trigger string, seq uint64)
	SetSubscribers(n int)
}

// EmptyMetrics is a Metrics that records nothing.
type EmptyMetrics struct{}

func (EmptyMetrics) ObservePublish(string, uint64) {}
func (EmptyMetrics) SetSubscribers(int)            {}
