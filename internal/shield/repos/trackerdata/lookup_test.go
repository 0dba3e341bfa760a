package trackerdata

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := newTestManager(t, opts)
	_, err := m.Load("fixture", fixture(t), bootstrap())
	require.NoError(t, err)
	return m
}

func TestFindEntityForHost(t *testing.T) {
	for _, variant := range []struct {
		name string
		opts func() Options
	}{
		{"plain", func() Options { return Options{} }},
		{"bloom and cache", func() Options { return Options{Bloom: &setBloomFactory{}, Cache: newMapCache()} }},
	} {
		t.Run(variant.name, func(t *testing.T) {
			m := loaded(t, variant.opts())
			tests := []struct {
				host   string
				want   string
				wantOK bool
			}{
				{"tracker.com", "Tracker Inc", true},
				{"ads.tracker.com", "Tracker Inc", true},
				{"WWW.Google.COM.", "Google", true},
				{"stats.g.doubleclick.net", "Google", true},
				{"cdn.instagram.com", "Facebook", true},
				{"news.com", "News Corp", true},
				{"metrics.news.com", "Adobe", true},
				{"smetrics.news.com", "Adobe", true},
				{"www.news.com", "News Corp", true},
				{"loop-a.example.org", "", false},
				{"unknown.example", "", false},
				{"", "", false},
			}
			for _, tt := range tests {
				e, ok := m.FindEntityForHost(tt.host)
				assert.Equal(t, tt.wantOK, ok, tt.host)
				assert.Equal(t, tt.want, e.DisplayName, tt.host)
				// second call is served from cache when present
				e2, ok2 := m.FindEntityForHost(tt.host)
				assert.Equal(t, ok, ok2)
				assert.Equal(t, e, e2)
			}
		})
	}
}

const privateSuffixTDS = `{
  "trackers": {
    "cloudfront.net": {"domain": "cloudfront.net", "default": "ignore",
      "owner": {"name": "Amazon", "displayName": "Amazon"}, "prevalence": 0.3, "categories": ["CDN"]}
  },
  "entities": {
    "Amazon": {"displayName": "Amazon", "domains": ["cloudfront.net"], "prevalence": 0.3},
    "Google": {"displayName": "Google", "domains": ["blogspot.com"], "prevalence": 0.8}
  },
  "domains": {"cloudfront.net": "Amazon", "blogspot.com": "Google"}
}`

func TestFindEntityForHost_PrivateSuffixOwners(t *testing.T) {
	m := newTestManager(t, Options{Bloom: &setBloomFactory{}, Cache: newMapCache()})
	_, err := m.Load("private", []byte(privateSuffixTDS), nil)
	require.NoError(t, err)

	tests := []struct {
		host  string
		want  string
		major bool
	}{
		{"cloudfront.net", "Amazon", true},
		{"d1abc.cloudfront.net", "Amazon", true},
		{"a.b.d1abc.cloudfront.net", "Amazon", true},
		{"foo.blogspot.com", "Google", true},
	}
	for _, tt := range tests {
		e, ok := m.FindEntityForHost(tt.host)
		assert.True(t, ok, tt.host)
		assert.Equal(t, tt.want, e.DisplayName, tt.host)
		assert.Equal(t, tt.major, m.IsMajorTracker(tt.host), tt.host)
	}

	tr, ok := m.FindTracker("d1abc.cloudfront.net")
	require.True(t, ok)
	assert.Equal(t, "cloudfront.net", tr.Domain)
}

func TestFindEntityForHost_CountsAmbiguity(t *testing.T) {
	m := loaded(t, Options{})
	assert.Zero(t, m.AmbiguousLookups())

	_, _ = m.FindEntityForHost("metrics.news.com")
	assert.Equal(t, uint64(1), m.AmbiguousLookups())

	_, _ = m.FindEntityForHost("ads.tracker.com")
	assert.Equal(t, uint64(1), m.AmbiguousLookups())
	assert.Equal(t, uint64(1), m.Stats().AmbiguousLookups)
}

func TestFindEntityByName(t *testing.T) {
	m := loaded(t, Options{})
	e, ok := m.FindEntityByName("Tracker Inc")
	require.True(t, ok)
	assert.Equal(t, 0.1, e.Prevalence)

	_, ok = m.FindEntityByName("tracker inc")
	assert.False(t, ok)
}

func TestFindTracker(t *testing.T) {
	m := loaded(t, Options{})

	tr, ok := m.FindTracker("x.ads.amazon-adsystem.com")
	require.True(t, ok)
	assert.Equal(t, "ads.amazon-adsystem.com", tr.Domain)

	_, ok = m.FindTracker("amazon-adsystem.com")
	assert.False(t, ok, "parent of a tracker key is not a tracker")

	tr, ok = m.FindTracker("metrics.news.com")
	require.True(t, ok)
	assert.Equal(t, "omtrdc.net", tr.Domain)
}

func TestIsMajorTracker(t *testing.T) {
	m := loaded(t, Options{})
	tests := map[string]bool{
		"google.com":              true,
		"facebook.com":            true,
		"connect.facebook.net":    true,
		"tracker.com":             false,
		"ads.amazon-adsystem.com": false,
		"unknown.example":         false,
	}
	for host, want := range tests {
		assert.Equal(t, want, m.IsMajorTracker(host), host)
	}
}

func TestCategory(t *testing.T) {
	m := loaded(t, Options{})

	c, ok := m.Category("ssl.google-analytics.com")
	require.True(t, ok)
	assert.Equal(t, "Analytics", c)

	_, ok = m.Category("youtube.com")
	assert.False(t, ok, "entity domain without tracker entry has no category")
}

func TestCacheEntriesFromOlderGenerationsAreIgnored(t *testing.T) {
	cache := newMapCache()
	m := loaded(t, Options{Cache: cache})

	_, ok := m.FindEntityForHost("google.com")
	require.True(t, ok)

	// stale entry written after the swap must not leak into the new snapshot
	_, err := m.Load("minimal", []byte(minimalTDS), bootstrap())
	require.NoError(t, err)
	cache.Put("google.com", Match{Gen: 1, Entity: "Google LLC"})

	_, ok = m.FindEntityForHost("google.com")
	assert.False(t, ok)
}

func TestChase_HopLimit(t *testing.T) {
	m := newTestManager(t, Options{MaxHops: 8})
	cnames := map[string]string{}
	for i := range 10 {
		cnames[fmt.Sprintf("h%d.example", i)] = fmt.Sprintf("h%d.example", i+1)
	}

	got, err := m.chase(cnames, "h0.example")
	assert.ErrorIs(t, err, ErrAliasDepthExceeded)
	assert.Equal(t, "h0.example", got)

	got, err = m.chase(cnames, "h3.example")
	require.NoError(t, err)
	assert.Equal(t, "h10.example", got)
}

func TestChase_Loop(t *testing.T) {
	m := newTestManager(t, Options{})
	cnames := map[string]string{"a.example": "b.example", "b.example": "c.example", "c.example": "a.example"}

	got, err := m.chase(cnames, "a.example")
	assert.ErrorIs(t, err, ErrAliasLoopDetected)
	assert.Equal(t, "a.example", got)

	got, err = m.chase(cnames, "nothing.example")
	require.NoError(t, err)
	assert.Equal(t, "nothing.example", got)
}

func TestMatch_BloomSkipsAbsentSuffixes(t *testing.T) {
	bf := &setBloomFactory{}
	m := loaded(t, Options{Bloom: bf})

	before := bf.last.probes
	_, ok := m.FindEntityForHost("a.b.c.unknown.example")
	assert.False(t, ok)
	assert.Greater(t, bf.last.probes, before)
}
