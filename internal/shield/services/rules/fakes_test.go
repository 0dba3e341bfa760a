package rules

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-shield/internal/shield/domain"
)

type fakeArtifact struct {
	name  string
	rules []domain.BlockerRule
}

func (a *fakeArtifact) Name() string    { return a.name }
func (a *fakeArtifact) RulesCount() int { return len(a.rules) }

// fakeCompiler records compiles and can block or fail on demand.
type fakeCompiler struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	gate     chan struct{}
	active   map[string]int
	maxAlive map[string]int
	total    atomic.Int64
}

func newFakeCompiler() *fakeCompiler {
	return &fakeCompiler{
		calls:    map[string]int{},
		fail:     map[string]error{},
		active:   map[string]int{},
		maxAlive: map[string]int{},
	}
}

func (c *fakeCompiler) Compile(ctx context.Context, name string, rules []domain.BlockerRule) (domain.RuleArtifact, error) {
	c.mu.Lock()
	c.calls[name]++
	c.active[name]++
	c.maxAlive[name] = max(c.maxAlive[name], c.active[name])
	gate := c.gate
	err := c.fail[name]
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active[name]--
		c.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.total.Add(1)
	if err != nil {
		return nil, err
	}
	return &fakeArtifact{name: name, rules: rules}, nil
}

func (c *fakeCompiler) setGate(g chan struct{}) {
	c.mu.Lock()
	c.gate = g
	c.mu.Unlock()
}

func (c *fakeCompiler) setFail(name string, err error) {
	c.mu.Lock()
	c.fail[name] = err
	c.mu.Unlock()
}

func (c *fakeCompiler) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *fakeCompiler) maxConcurrent(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxAlive[name]
}

var errRejected = errors.New("rejected by compiler")

// fakeTrackerData is a mutable TrackerData.
type fakeTrackerData struct {
	mu  sync.Mutex
	ds  *domain.TrackerDataSet
	tag string
}

func (f *fakeTrackerData) Current() (*domain.TrackerDataSet, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ds, f.tag
}

func (f *fakeTrackerData) set(ds *domain.TrackerDataSet, tag string) {
	f.mu.Lock()
	f.ds, f.tag = ds, tag
	f.mu.Unlock()
}

type fakeProtection struct {
	mu    sync.Mutex
	lists domain.ProtectionLists
}

func (f *fakeProtection) Lists() domain.ProtectionLists {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeProtection) set(l domain.ProtectionLists) {
	f.mu.Lock()
	f.lists = l
	f.mu.Unlock()
}

type fakeMetrics struct {
	mu        sync.Mutex
	outcomes  map[string]int
	published int
	tokens    int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{outcomes: map[string]int{}} }

func (m *fakeMetrics) ObserveCompile(_, outcome string, _ float64) {
	m.mu.Lock()
	m.outcomes[outcome]++
	m.mu.Unlock()
}
func (m *fakeMetrics) SetRules(string, int) {}
func (m *fakeMetrics) IncPublished(tokens int) {
	m.mu.Lock()
	m.published++
	m.tokens += tokens
	m.mu.Unlock()
}

func (m *fakeMetrics) outcome(o string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[o]
}

// trackerIncDataset has one tracker, tracker.com, owned by Tracker Inc with
// prevalence 0.1.
func trackerIncDataset() *domain.TrackerDataSet {
	ds := domain.EmptyTrackerDataSet()
	ds.Entities["Tracker Inc"] = domain.Entity{
		DisplayName: "Tracker Inc",
		Domains:     []string{"tracker.com", "trackerinc.net"},
		Prevalence:  0.1,
	}
	ds.Domains["tracker.com"] = "Tracker Inc"
	ds.Domains["trackerinc.net"] = "Tracker Inc"
	ds.Trackers["tracker.com"] = domain.Tracker{
		Domain:        "tracker.com",
		DefaultAction: domain.ActionBlock,
		Owner:         domain.Owner{Name: "Tracker Inc", DisplayName: "Tracker Inc"},
		Prevalence:    0.1,
		Categories:    []string{"Analytics"},
	}
	return ds
}
