package trackerdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkSections(t *testing.T) {
	m := loaded(t, Options{})
	detected := map[string]int{
		"www.google-analytics.com": 3,
		"stats.g.doubleclick.net":  1,
		"connect.facebook.net":     2,
		"tracker.com":              5,
		"metrics.news.com":         1,
		"unknown.example":          9,
	}

	got := m.NetworkSections(detected, false)
	assert.Equal(t, []NetworkSection{
		{Name: "Adobe", Rows: []NetworkRow{{Host: "metrics.news.com", Category: "Analytics", Count: 1}}},
		{Name: "Facebook", Major: true, Rows: []NetworkRow{{Host: "connect.facebook.net", Category: "Social Network", Count: 2}}},
		{Name: "Google", Major: true, Rows: []NetworkRow{
			{Host: "stats.g.doubleclick.net", Category: "Advertising", Count: 1},
			{Host: "www.google-analytics.com", Category: "Analytics", Count: 3},
		}},
		{Name: "Tracker Inc", Rows: []NetworkRow{{Host: "tracker.com", Category: "Advertising", Count: 5}}},
	}, got)

	major := m.NetworkSections(detected, true)
	names := make([]string, 0, len(major))
	for _, s := range major {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Facebook", "Google"}, names)
}

func TestNetworkSections_Empty(t *testing.T) {
	m := loaded(t, Options{})
	assert.Empty(t, m.NetworkSections(nil, false))
}
