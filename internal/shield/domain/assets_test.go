package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptBundle(t *testing.T) {
	var nilBundle *ScriptBundle
	assert.True(t, nilBundle.IsEmpty())
	_, ok := nilBundle.Script("gpc")
	assert.False(t, ok)

	b := &ScriptBundle{Scripts: []Script{{Name: "contentblocker", Source: "x"}}}
	assert.False(t, b.IsEmpty())
	s, ok := b.Script("contentblocker")
	assert.True(t, ok)
	assert.Equal(t, "x", s.Source)
	_, ok = b.Script("gpc")
	assert.False(t, ok)
}

func TestContentBlockingAssets_IsValid(t *testing.T) {
	var nilAssets *ContentBlockingAssets
	assert.False(t, nilAssets.IsValid("test"))

	a := &ContentBlockingAssets{
		RuleArtifacts: map[string]RuleArtifact{"test": &stubArtifact{name: "test"}},
		Scripts:       &ScriptBundle{Scripts: []Script{{Name: "contentblocker"}}},
	}
	assert.True(t, a.IsValid("test"))
	assert.False(t, a.IsValid("other"))

	a.Scripts = &ScriptBundle{}
	assert.False(t, a.IsValid("test"))
}
