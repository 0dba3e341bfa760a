package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRuleIdentifier(t *testing.T) {
	p := ProtectionLists{
		TempListEtag:     "temp-1",
		AllowListEtag:    "allow-1",
		UnprotectedSites: []string{"example.com"},
	}
	id := NewRuleIdentifier("test", "asd", p)

	assert.Equal(t, "test", id.Name)
	assert.Equal(t, "asd", id.TDSEtag)
	assert.Equal(t, "temp-1", id.TempListEtag)
	assert.Equal(t, "allow-1", id.AllowListEtag)
	assert.NotEmpty(t, id.UnprotectedSitesHash)
	assert.False(t, id.IsZero())
	assert.True(t, RuleIdentifier{}.IsZero())
}

func TestRuleIdentifier_EqualityDrivesDigest(t *testing.T) {
	a := NewRuleIdentifier("test", "asd", ProtectionLists{UnprotectedSites: []string{"b.com", "a.com"}})
	b := NewRuleIdentifier("test", "asd", ProtectionLists{UnprotectedSites: []string{"a.com", "B.com", "a.com"}})
	c := NewRuleIdentifier("test", "asd2", ProtectionLists{UnprotectedSites: []string{"a.com", "b.com"}})

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Digest(), b.Digest())
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Digest(), c.Digest())
	assert.Len(t, a.Digest(), 64)
}

func TestRuleIdentifier_AbsentComponents(t *testing.T) {
	withName := RuleIdentifier{Name: "test"}
	other := RuleIdentifier{Name: "other"}

	assert.NotEqual(t, withName.Digest(), other.Digest())
	assert.Equal(t, withName.Digest(), RuleIdentifier{Name: "test"}.Digest())
	assert.Contains(t, withName.String(), "test")
}
