package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata"
)

// lookupCache is an LRU-backed implementation of trackerdata.LookupCache.
// It tracks basic metrics: hits, misses, and evictions.
type lookupCache struct {
	lru       *lru.Cache[string, trackerdata.Match]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op LookupCache used when size <= 0.
type disabledCache struct{}

// New creates a LookupCache with the given capacity. If size <= 0, a disabled
// cache is returned that always misses and tracks no metrics.
func New(size int) (trackerdata.LookupCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	c := &lookupCache{}
	// NewWithEvict observes evictions, including Purge-induced ones.
	cache, err := lru.NewWithEvict(size, func(_ string, _ trackerdata.Match) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	c.lru = cache
	return c, nil
}

// Get looks up a resolution by host, counting hits and misses.
func (c *lookupCache) Get(host string) (trackerdata.Match, bool) {
	if val, ok := c.lru.Get(host); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return trackerdata.Match{}, false
}

func (c *lookupCache) Put(host string, m trackerdata.Match) { c.lru.Add(host, m) }

func (c *lookupCache) Len() int { return c.lru.Len() }

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *lookupCache) Purge() { c.lru.Purge() }

// Stats returns cumulative hit/miss/eviction counters.
func (c *lookupCache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

func (d *disabledCache) Get(string) (trackerdata.Match, bool) { return trackerdata.Match{}, false }

func (d *disabledCache) Put(string, trackerdata.Match) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ trackerdata.LookupCache = (*lookupCache)(nil)
var _ trackerdata.LookupCache = (*disabledCache)(nil)
