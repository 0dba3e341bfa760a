// Package rules compiles the managed rulesets whenever their inputs change
// and publishes the results as an ordered stream of update events.
package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/haukened/rr-shield/internal/shield/common/clock"
	"github.com/haukened/rr-shield/internal/shield/common/log"
	"github.com/haukened/rr-shield/internal/shield/common/queue"
	"github.com/haukened/rr-shield/internal/shield/domain"
	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata/tds"
)

// EncodeFunc renders a dataset for generated scripts.
type EncodeFunc func(ds *domain.TrackerDataSet) ([]byte, error)

// Options configures a Manager. Compiler and TrackerData are required.
type Options struct {
	Sources      []RulesetSource
	Compiler     Compiler
	TrackerData  TrackerData
	Protection   ProtectionSource
	Cache        *Cache
	Encode       EncodeFunc
	ErrorHandler func(error)
	Metrics      Metrics
	Clock        clock.Clock
	Logger       log.Logger
}

// slot is the per-ruleset compile state. Guarded by Manager.mu.
type slot struct {
	source   RulesetSource
	current  *domain.CompiledRules
	inFlight bool
	dirty    bool
}

// Manager owns the managed rulesets. Compiles run on per-ruleset goroutines;
// at most one compile per ruleset is in flight and triggers arriving
// meanwhile collapse into one trailing pass.
type Manager struct {
	compiler    Compiler
	trackerData TrackerData
	protection  ProtectionSource
	cache       *Cache
	encode      EncodeFunc
	onError     func(error)
	metrics     Metrics
	clock       clock.Clock
	logger      log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	outbox *queue.Pump[domain.UpdateEvent]

	mu       sync.Mutex
	slots    map[string]*slot
	order    []string
	inFlight int
	tokens   []domain.CompletionToken
	changed  map[string]struct{}
	passErr  error
	closed   bool
	failures uint64
}

// New validates opts and returns a Manager. No compile runs until the first
// ScheduleRecompile or RequestUpdate.
func New(opts Options) (*Manager, error) {
	if opts.Compiler == nil {
		return nil, errors.New("rules: compiler is required")
	}
	if opts.TrackerData == nil {
		return nil, errors.New("rules: tracker data is required")
	}
	if len(opts.Sources) == 0 {
		opts.Sources = DefaultSources()
	}
	if opts.Cache == nil {
		c, err := NewCache(DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		opts.Cache = c
	}
	if opts.Encode == nil {
		opts.Encode = tds.Encode
	}
	if opts.Metrics == nil {
		opts.Metrics = EmptyMetrics{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	m := &Manager{
		compiler:    opts.Compiler,
		trackerData: opts.TrackerData,
		protection:  opts.Protection,
		cache:       opts.Cache,
		encode:      opts.Encode,
		onError:     opts.ErrorHandler,
		metrics:     opts.Metrics,
		clock:       opts.Clock,
		logger:      opts.Logger,
		outbox:      queue.NewPump[domain.UpdateEvent](),
		slots:       make(map[string]*slot, len(opts.Sources)),
		changed:     make(map[string]struct{}),
	}
	for _, src := range opts.Sources {
		if src.Name == "" || src.Selector == nil {
			return nil, fmt.Errorf("rules: invalid ruleset source %+v", src)
		}
		if _, dup := m.slots[src.Name]; dup {
			return nil, fmt.Errorf("rules: ruleset %q configured twice", src.Name)
		}
		m.slots[src.Name] = &slot{source: src}
		m.order = append(m.order, src.Name)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Updates returns the ordered event stream. It is closed by Close.
func (m *Manager) Updates() <-chan domain.UpdateEvent { return m.outbox.Out() }

// RequestUpdate queues token for the next event that reflects every input
// known now. An event carrying the token is emitted even when no ruleset
// needs recompiling.
func (m *Manager) RequestUpdate(token domain.CompletionToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.tokens = append(m.tokens, token)
	m.scheduleLocked("update_requested")
}

// ScheduleRecompile checks every ruleset against its current inputs.
// Rulesets with a compile in flight are marked dirty instead.
func (m *Manager) ScheduleRecompile(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.scheduleLocked(reason)
}

func (m *Manager) scheduleLocked(reason string) {
	started := 0
	for _, name := range m.order {
		s := m.slots[name]
		if s.inFlight {
			s.dirty = true
			continue
		}
		s.inFlight = true
		m.inFlight++
		started++
		m.wg.Add(1)
		go m.run(s)
	}
	m.logger.Debug(map[string]any{
		"reason":    reason,
		"started":   started,
		"in_flight": m.inFlight,
	}, "Recompile scheduled")
}

// run compiles s until no trigger arrived during the last pass.
func (m *Manager) run(s *slot) {
	defer m.wg.Done()
	for {
		next, changed, err := m.compile(s)

		m.mu.Lock()
		if changed {
			s.current = next
			m.changed[s.source.Name] = struct{}{}
		}
		if err != nil {
			m.passErr = multierr.Append(m.passErr, err)
			m.failures++
		}
		if s.dirty && !m.closed {
			s.dirty = false
			m.mu.Unlock()
			continue
		}
		s.inFlight = false
		s.dirty = false
		m.inFlight--
		if m.inFlight == 0 {
			m.publishLocked()
		}
		m.mu.Unlock()
		return
	}
}

// compile brings one ruleset up to date with the current inputs. It reports
// the rules to install and whether they differ from the slot's current ones.
func (m *Manager) compile(s *slot) (*domain.CompiledRules, bool, error) {
	start := m.clock.Now()
	name := s.source.Name

	ds, tag := m.trackerData.Current()
	var lists domain.ProtectionLists
	if m.protection != nil {
		lists = m.protection.Lists()
	}
	id := domain.NewRuleIdentifier(name, tag, lists)

	m.mu.Lock()
	cur := s.current
	m.mu.Unlock()

	if cur != nil && cur.Identifier.Equal(id) {
		m.metrics.ObserveCompile(name, "unchanged", m.since(start))
		return cur, false, nil
	}
	if cached, ok := m.cache.Get(id); ok {
		m.metrics.ObserveCompile(name, "cached", m.since(start))
		m.metrics.SetRules(name, cached.Artifact.RulesCount())
		m.logger.Debug(map[string]any{
			"ruleset":    name,
			"identifier": id.String(),
			"generation": cached.Generation,
		}, "Compiled rules reused from cache")
		return cached, cur != cached, nil
	}

	next, err := m.build(name, s.source.Selector, ds, tag, lists, id)
	if err != nil {
		if m.ctx.Err() != nil {
			return cur, false, nil
		}
		cerr := &domain.CompileError{Ruleset: name, Identifier: id, Err: err}
		m.metrics.ObserveCompile(name, "failed", m.since(start))
		m.logger.Error(map[string]any{
			"ruleset":    name,
			"identifier": id.String(),
			"stale":      cur != nil,
			"error":      err,
		}, "Ruleset compile failed")
		if m.onError != nil {
			m.onError(cerr)
		}
		return cur, false, cerr
	}

	m.cache.Put(next)
	m.metrics.ObserveCompile(name, "compiled", m.since(start))
	m.metrics.SetRules(name, next.Artifact.RulesCount())
	m.logger.Info(map[string]any{
		"ruleset":    name,
		"tag":        tag,
		"rules":      next.Artifact.RulesCount(),
		"generation": next.Generation,
	}, "Ruleset compiled")
	return next, true, nil
}

func (m *Manager) build(name string, sel Selector, ds *domain.TrackerDataSet, tag string, lists domain.ProtectionLists, id domain.RuleIdentifier) (*domain.CompiledRules, error) {
	selected := sel.Select(ds)
	art, err := m.compiler.Compile(m.ctx, name, Generate(selected, lists))
	if err != nil {
		return nil, err
	}
	encoded, err := m.encode(selected)
	if err != nil {
		return nil, fmt.Errorf("encode tracker data: %w", err)
	}
	return &domain.CompiledRules{
		Name:               name,
		Artifact:           art,
		Dataset:            selected,
		EncodedTrackerData: string(encoded),
		ETag:               tag,
		Identifier:         id,
		Protection:         lists,
		CompiledAt:         m.clock.Now(),
	}, nil
}

// publishLocked emits one event if anything changed or tokens are pending.
// m.mu must be held.
func (m *Manager) publishLocked() {
	if m.passErr != nil {
		m.logger.Warn(map[string]any{
			"errors": len(multierr.Errors(m.passErr)),
			"error":  m.passErr,
		}, "Compile pass finished with errors")
		m.passErr = nil
	}
	if len(m.changed) == 0 && len(m.tokens) == 0 {
		return
	}

	ev := domain.UpdateEvent{
		Rules:            m.snapshotLocked(),
		Changed:          m.changed,
		CompletionTokens: m.tokens,
	}
	m.changed = make(map[string]struct{})
	m.tokens = nil

	m.outbox.Push(ev)
	m.metrics.IncPublished(len(ev.CompletionTokens))
	m.logger.Debug(map[string]any{
		"rulesets": len(ev.Rules),
		"changed":  ev.ChangedNames(),
		"tokens":   len(ev.CompletionTokens),
	}, "Rules update published")
}

func (m *Manager) snapshotLocked() map[string]*domain.CompiledRules {
	out := make(map[string]*domain.CompiledRules, len(m.slots))
	for name, s := range m.slots {
		if s.current != nil {
			out[name] = s.current
		}
	}
	return out
}

// Current returns the compiled rules currently held for name.
func (m *Manager) Current(name string) (*domain.CompiledRules, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[name]
	if !ok || s.current == nil {
		return nil, false
	}
	return s.current, true
}

// Names returns the managed ruleset names in configuration order.
func (m *Manager) Names() []string { return slices.Clone(m.order) }

// Failures returns the number of failed compiles so far.
func (m *Manager) Failures() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Idle reports whether no compile is in flight.
func (m *Manager) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight == 0
}

// Close stops accepting triggers, waits for in-flight compiles and closes
// the Updates channel. Events not yet received are dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.outbox.Close()
}

func (m *Manager) since(start time.Time) float64 {
	return m.clock.Now().Sub(start).Seconds()
}
