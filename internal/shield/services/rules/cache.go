package rules

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-shield/internal/shield/domain"
)

// DefaultCacheSize bounds the number of compiled rulesets kept for reuse.
const DefaultCacheSize = 16

// Cache maps RuleIdentifier digests to compiled rules. Every Put is stamped
// with the next value of a monotonically increasing generation counter.
type Cache struct {
	mu   sync.Mutex
	lru  *lru.Cache[string, *domain.CompiledRules]
	gen  uint64
	hits atomic.Uint64
	miss atomic.Uint64
}

// NewCache returns a cache holding at most size entries. size <= 0 selects
// DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.New[string, *domain.CompiledRules](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get returns the compiled rules stored for id.
func (c *Cache) Get(id domain.RuleIdentifier) (*domain.CompiledRules, bool) {
	r, ok := c.lru.Get(id.Digest())
	if ok {
		c.hits.Add(1)
		return r, true
	}
	c.miss.Add(1)
	return nil, false
}

// Put stores r under its identifier, sets r.Generation and returns it.
// r must not be shared until Put returns.
func (c *Cache) Put(r *domain.CompiledRules) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	r.Generation = c.gen
	c.lru.Add(r.Identifier.Digest(), r)
	return c.gen
}

// Generation returns the generation of the most recent Put.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Len returns the number of cached rulesets.
func (c *Cache) Len() int { return c.lru.Len() }

// Stats returns cumulative hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) { return c.hits.Load(), c.miss.Load() }
