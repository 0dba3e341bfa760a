package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata"
)

func TestLookupCache_HitMissAndPut(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	_, ok := c.Get("tracker.com")
	assert.False(t, ok)

	c.Put("tracker.com", trackerdata.Match{Gen: 1, Entity: "Tracker Inc"})
	got, ok := c.Get("tracker.com")
	require.True(t, ok)
	assert.Equal(t, "Tracker Inc", got.Entity)

	hits, misses, _ := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestLookupCache_EvictionAndLen(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	c.Put("a", trackerdata.Match{})
	c.Put("b", trackerdata.Match{})
	assert.Equal(t, 2, c.Len())

	c.Put("c", trackerdata.Match{})
	assert.Equal(t, 2, c.Len())
	_, _, ev := c.Stats()
	assert.Equal(t, uint64(1), ev)
}

func TestLookupCache_PurgeCountsEvictions(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)
	c.Put("a", trackerdata.Match{})
	c.Put("b", trackerdata.Match{})
	c.Put("c", trackerdata.Match{})

	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, _, ev := c.Stats()
	assert.Equal(t, uint64(3), ev)
}

func TestDisabledCache(t *testing.T) {
	for _, size := range []int{0, -1} {
		c, err := New(size)
		require.NoError(t, err)
		c.Put("a", trackerdata.Match{Entity: "x"})
		_, ok := c.Get("a")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
		c.Purge()
		h, m, e := c.Stats()
		assert.Zero(t, h+m+e)
	}
}
