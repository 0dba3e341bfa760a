package domain

// Script is one generated page script.
type Script struct {
	Name          string
	Source        string
	InjectAtStart bool
	MainFrameOnly bool
}

// ScriptBundle is the opaque set of generated page scripts. A new bundle is
// built on every publish; consumers may rely on pointer identity to tell
// bundles apart.
type ScriptBundle struct {
	Scripts  []Script
	Settings SettingsSnapshot
}

// IsEmpty reports whether the bundle carries no scripts.
func (b *ScriptBundle) IsEmpty() bool { return b == nil || len(b.Scripts) == 0 }

// Script returns the script with the given name.
func (b *ScriptBundle) Script(name string) (Script, bool) {
	if b == nil {
		return Script{}, false
	}
	for _, s := range b.Scripts {
		if s.Name == name {
			return s, true
		}
	}
	return Script{}, false
}

// ContentBlockingAssets is the value published to the rendering layer.
type ContentBlockingAssets struct {
	RuleArtifacts map[string]RuleArtifact
	Scripts       *ScriptBundle
	SourceEvent   UpdateEvent
	Sequence      uint64 // position in the publish order, starting at 1
}

// IsValid reports whether the named ruleset is present and scripts were
// generated.
func (a *ContentBlockingAssets) IsValid(ruleset string) bool {
	if a == nil {
		return false
	}
	return a.RuleArtifacts[ruleset] != nil && !a.Scripts.IsEmpty()
}
