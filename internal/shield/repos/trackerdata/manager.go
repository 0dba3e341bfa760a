// Package trackerdata owns the current tracker dataset and answers matching
// queries against it. Reads go through a lookup cache → bloom → index
// pipeline over an immutable snapshot that is swapped atomically on load.
package trackerdata

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haukened/rr-shield/internal/shield/common/clock"
	"github.com/haukened/rr-shield/internal/shield/common/log"
	"github.com/haukened/rr-shield/internal/shield/domain"
	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata/tds"
)

// DefaultMaxHops bounds CNAME chasing.
const DefaultMaxHops = 8

// MajorTrackerThreshold is the entity prevalence above which a tracker
// counts as major.
const MajorTrackerThreshold = 0.2

// ParseFunc decodes raw tracker data.
type ParseFunc func(raw []byte) (*domain.TrackerDataSet, tds.Report, error)

// Options configures a Manager. Zero values select defaults; a nil Bloom or
// Cache disables that stage, a nil Store disables persistence.
type Options struct {
	Parse   ParseFunc
	Bloom   BloomFactory
	FPRate  float64
	Cache   LookupCache
	Store   Store
	Clock   clock.Clock
	Logger  log.Logger
	MaxHops int
}

// snapshot is one immutable dataset generation.
type snapshot struct {
	ds       *domain.TrackerDataSet
	tag      string
	gen      uint64
	bloom    BloomFilter
	loadedAt time.Time
	fallback bool // installed because the requested data failed to parse
}

// Manager holds the current TrackerDataSet and its version tag.
type Manager struct {
	current atomic.Pointer[snapshot]
	loadMu  sync.Mutex // serializes Load/Restore; readers never take it
	gen     atomic.Uint64

	parse   ParseFunc
	bloom   BloomFactory
	fpRate  float64
	cache   LookupCache
	store   Store
	clock   clock.Clock
	logger  log.Logger
	maxHops int

	ambiguous atomic.Uint64
}

// New constructs a Manager holding an empty dataset.
func New(opts Options) *Manager {
	m := &Manager{
		parse:   opts.Parse,
		bloom:   opts.Bloom,
		fpRate:  opts.FPRate,
		cache:   opts.Cache,
		store:   opts.Store,
		clock:   opts.Clock,
		logger:  opts.Logger,
		maxHops: opts.MaxHops,
	}
	if m.parse == nil {
		m.parse = tds.Parse
	}
	if m.clock == nil {
		m.clock = clock.RealClock{}
	}
	if m.logger == nil {
		m.logger = log.NewNoopLogger()
	}
	if m.maxHops <= 0 {
		m.maxHops = DefaultMaxHops
	}
	m.current.Store(&snapshot{ds: domain.EmptyTrackerDataSet()})
	return m
}

// Current returns the dataset and its tag as one consistent pair.
func (m *Manager) Current() (*domain.TrackerDataSet, string) {
	s := m.current.Load()
	return s.ds, s.tag
}

// Load parses raw as the dataset identified by tag and installs it when the
// tag differs from the current one. On a parse failure the fallback's dataset
// is installed instead and a *domain.DataParseError is returned alongside the
// changed flag; the error is informational unless no fallback could be used.
func (m *Manager) Load(tag string, raw []byte, fallback FallbackProvider) (bool, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	ds, rep, err := m.parse(raw)
	if err != nil {
		perr := &domain.DataParseError{Tag: tag, Err: err}
		m.logger.Warn(map[string]any{"tag": tag, "error": err}, "Tracker data rejected, using fallback")
		changed, ferr := m.installFallback(fallback)
		if ferr != nil {
			return false, errors.Join(perr, ferr)
		}
		return changed, perr
	}

	if cur := m.current.Load(); cur.tag == tag && !cur.fallback {
		m.logger.Debug(map[string]any{"tag": tag}, "Tracker data unchanged")
		return false, nil
	}

	m.install(ds, tag, false, rep)
	m.persist(tag, raw)
	return true, nil
}

// Restore installs the persisted dataset if one exists and parses, otherwise
// the fallback's bundled dataset. It is meant to run once at startup.
func (m *Manager) Restore(fallback FallbackProvider) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if m.store != nil {
		tag, raw, ok, err := m.store.Latest()
		switch {
		case err != nil:
			m.logger.Warn(map[string]any{"error": err}, "Reading persisted tracker data failed")
		case ok:
			ds, rep, perr := m.parse(raw)
			if perr == nil {
				m.install(ds, tag, false, rep)
				return nil
			}
			m.logger.Warn(map[string]any{"tag": tag, "error": perr}, "Persisted tracker data rejected")
		}
	}
	_, err := m.installFallback(fallback)
	return err
}

func (m *Manager) installFallback(fallback FallbackProvider) (bool, error) {
	if fallback == nil {
		return false, domain.ErrNoFallback
	}
	tag, raw, err := fallback.Bootstrap()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrNoFallback, err)
	}
	ds, rep, err := m.parse(raw)
	if err != nil {
		return false, fmt.Errorf("%w: bootstrap data: %v", domain.ErrNoFallback, err)
	}
	if cur := m.current.Load(); cur.tag == tag && cur.gen != 0 {
		return false, nil
	}
	m.install(ds, tag, true, rep)
	return true, nil
}

// install builds a bloom filter for ds and publishes the new snapshot.
func (m *Manager) install(ds *domain.TrackerDataSet, tag string, fallback bool, rep tds.Report) {
	var bf BloomFilter
	if m.bloom != nil {
		bf = m.bloom.New(uint64(len(ds.Domains)+len(ds.Trackers)), m.fpRate)
		for d := range ds.Domains {
			bf.Add([]byte(d))
		}
		for d := range ds.Trackers {
			bf.Add([]byte(d))
		}
	}
	now := m.clock.Now()
	s := &snapshot{ds: ds, tag: tag, gen: m.gen.Add(1), bloom: bf, loadedAt: now, fallback: fallback}
	m.current.Store(s)
	if m.cache != nil {
		// entries carry their generation, purging only frees memory
		m.cache.Purge()
	}

	trackers, entities, domains, cnames := ds.Counts()
	m.logger.Info(map[string]any{
		"tag":                tag,
		"generation":         s.gen,
		"fallback":           fallback,
		"trackers":           trackers,
		"entities":           entities,
		"domains":            domains,
		"cnames":             cnames,
		"dropped_entities":   rep.DroppedEntities,
		"dropped_domains":    rep.DroppedDomains,
		"clamped_prevalence": rep.ClampedPrevalence,
	}, "Tracker data loaded")
}

func (m *Manager) persist(tag string, raw []byte) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(tag, raw, m.clock.Now()); err != nil {
		m.logger.Warn(map[string]any{"tag": tag, "error": err}, "Persisting tracker data failed")
	}
}
