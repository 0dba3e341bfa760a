package trackerdata

import "time"

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the manager needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a filter sized for capacity keys at fpRate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// Match is a memoised host resolution. Gen ties the entry to the snapshot it
// was computed against; entries from older snapshots are treated as misses.
type Match struct {
	Gen     uint64
	Entity  string // entity name, "" when none
	Tracker string // tracker key, "" when none
	Via     string // CNAME-resolved host, "" when no alias applied
}

// LookupCache caches host resolutions with basic metrics.
type LookupCache interface {
	Get(host string) (Match, bool)
	Put(host string, m Match)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// StoreStats captures metadata about the persisted dataset.
type StoreStats struct {
	Tag       string
	Bytes     uint64
	SavedUnix int64 // seconds since epoch
	Saves     uint64
}

// Store persists the raw bytes and tag of the last good dataset.
type Store interface {
	Save(tag string, raw []byte, savedAt time.Time) error
	Latest() (tag string, raw []byte, ok bool, err error)
	Stats() StoreStats
	Close() error
}

// FallbackProvider supplies the bundled dataset used when remote data cannot
// be parsed.
type FallbackProvider interface {
	Bootstrap() (tag string, raw []byte, err error)
}
