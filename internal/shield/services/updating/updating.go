// Package updating merges rules updates and settings changes into the single
// ordered stream of ContentBlockingAssets consumed by the rendering layer.
package updating

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-shield/internal/shield/common/log"
	"github.com/haukened/rr-shield/internal/shield/common/queue"
	"github.com/haukened/rr-shield/internal/shield/domain"
	"github.com/haukened/rr-shield/internal/shield/services/settings"
)

// State is the coordinator lifecycle. It only moves forward.
type State uint32

const (
	// StateUninitialized: no rules snapshot with a ruleset has been seen.
	StateUninitialized State = iota
	// StateReady: assets are published on every trigger.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Publish triggers.
const (
	TriggerRules    = "rules"
	TriggerSettings = "settings"
)

// Options configures an Updating. Rules, Store and Scripts are required.
// Settings may be nil when no settings changes are expected.
type Options struct {
	Rules    RulesSource
	Settings <-chan settings.Change
	Store    SettingsStore
	Scripts  ScriptBuilder
	Metrics  Metrics
	Logger   log.Logger
}

// Updating is the sole producer of ContentBlockingAssets. Run is the only
// writer; readers and subscribers see fully formed values.
type Updating struct {
	rules    <-chan domain.UpdateEvent
	changes  <-chan settings.Change
	store    SettingsStore
	scripts  ScriptBuilder
	metrics  Metrics
	logger   log.Logger
	running  atomic.Bool
	state    atomic.Uint32
	latest   atomic.Pointer[domain.ContentBlockingAssets]
	subsMu   sync.Mutex
	subs     map[uint64]*Subscription
	nextSub  uint64
	closed   bool

	// owned by Run
	snap      domain.SettingsSnapshot
	lastEvent domain.UpdateEvent
	carry     []domain.CompletionToken
	seq       uint64
}

// New validates opts and returns an Updating in StateUninitialized. Call Run
// to start it.
func New(opts Options) (*Updating, error) {
	if opts.Rules == nil {
		return nil, errors.New("updating: rules source is required")
	}
	if opts.Store == nil {
		return nil, errors.New("updating: settings store is required")
	}
	if opts.Scripts == nil {
		return nil, errors.New("updating: script builder is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = EmptyMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Updating{
		rules:   opts.Rules.Updates(),
		changes: opts.Settings,
		store:   opts.Store,
		scripts: opts.Scripts,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		subs:    make(map[uint64]*Subscription),
	}, nil
}

// State returns the current lifecycle state.
func (u *Updating) State() State { return State(u.state.Load()) }

// Latest returns the most recent publish.
func (u *Updating) Latest() (*domain.ContentBlockingAssets, bool) {
	a := u.latest.Load()
	return a, a != nil
}

// Run merges triggers until ctx is done or the rules stream ends. It must be
// called once.
func (u *Updating) Run(ctx context.Context) error {
	if !u.running.CompareAndSwap(false, true) {
		return errors.New("updating: already running")
	}
	defer u.closeSubscribers()

	u.snap = u.store.Snapshot()
	changes := u.changes
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-u.rules:
			if !ok {
				u.logger.Info(nil, "Rules stream closed")
				return nil
			}
			u.onRules(ev)
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			u.onSettings(c)
		}
	}
}

func (u *Updating) onRules(ev domain.UpdateEvent) {
	if len(u.carry) > 0 {
		ev.CompletionTokens = append(slices.Clone(u.carry), ev.CompletionTokens...)
		u.carry = nil
	}
	if u.State() == StateUninitialized {
		if !ev.HasRules() {
			u.carry = ev.CompletionTokens
			u.logger.Debug(map[string]any{"tokens": len(u.carry)}, "Rules update without rulesets deferred")
			return
		}
		u.state.Store(uint32(StateReady))
		u.logger.Info(map[string]any{"rulesets": len(ev.Rules)}, "Content blocking ready")
	}
	if !u.publish(TriggerRules, ev) {
		u.carry = ev.CompletionTokens
	}
	u.lastEvent = ev.WithoutTokens()
}

func (u *Updating) onSettings(c settings.Change) {
	u.snap = u.store.Snapshot()
	if u.State() != StateReady {
		u.logger.Debug(map[string]any{"reason": c.Reason.String()}, "Settings changed before rules were ready")
		return
	}
	u.logger.Debug(map[string]any{"reason": c.Reason.String(), "seq": c.Seq}, "Settings changed")
	u.publish(TriggerSettings, u.lastEvent.WithoutTokens())
}

// publish builds fresh scripts and fans the new assets out. It reports
// whether anything was published.
func (u *Updating) publish(trigger string, ev domain.UpdateEvent) bool {
	bundle, err := u.scripts.Build(u.snap, ev)
	if err != nil {
		u.logger.Error(map[string]any{"trigger": trigger, "error": err}, "Building scripts failed, publish skipped")
		return false
	}
	u.seq++
	assets := &domain.ContentBlockingAssets{
		RuleArtifacts: ev.Artifacts(),
		Scripts:       bundle,
		SourceEvent:   ev,
		Sequence:      u.seq,
	}

	u.subsMu.Lock()
	u.latest.Store(assets)
	for _, s := range u.subs {
		s.pump.Push(assets)
	}
	u.subsMu.Unlock()

	u.metrics.ObservePublish(trigger, assets.Sequence)
	u.logger.Debug(map[string]any{
		"trigger":  trigger,
		"sequence": assets.Sequence,
		"rulesets": len(assets.RuleArtifacts),
		"changed":  ev.ChangedNames(),
		"tokens":   len(ev.CompletionTokens),
	}, "Content blocking assets published")
	return true
}

// Subscription delivers every publish, in order, starting with the latest
// one at the time of subscribing.
type Subscription struct {
	id   uint64
	u    *Updating
	pump *queue.Pump[*domain.ContentBlockingAssets]
	once sync.Once
}

// Assets is closed after Unsubscribe or when Run returns.
func (s *Subscription) Assets() <-chan *domain.ContentBlockingAssets { return s.pump.Out() }

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.u.subsMu.Lock()
		delete(s.u.subs, s.id)
		n := len(s.u.subs)
		s.u.subsMu.Unlock()
		s.pump.Close()
		s.u.metrics.SetSubscribers(n)
	})
}

// Subscribe registers a subscriber. The latest publish, if any, is queued
// first.
func (u *Updating) Subscribe() *Subscription {
	u.subsMu.Lock()
	defer u.subsMu.Unlock()

	u.nextSub++
	s := &Subscription{id: u.nextSub, u: u, pump: queue.NewPump[*domain.ContentBlockingAssets]()}
	if u.closed {
		s.once.Do(s.pump.Close)
		return s
	}
	if a := u.latest.Load(); a != nil {
		s.pump.Push(a)
	}
	u.subs[s.id] = s
	u.metrics.SetSubscribers(len(u.subs))
	return s
}

func (u *Updating) closeSubscribers() {
	u.subsMu.Lock()
	subs := u.subs
	u.subs = make(map[uint64]*Subscription)
	u.closed = true
	u.subsMu.Unlock()

	for _, s := range subs {
		s.once.Do(s.pump.Close)
	}
	u.metrics.SetSubscribers(0)
}
