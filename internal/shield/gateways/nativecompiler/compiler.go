// Package nativecompiler compiles generated content-blocker rules into a
// matchable artifact backed by the AdGuard urlfilter DNS engine.
package nativecompiler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"golang.org/x/net/idna"

	"github.com/haukened/rr-shield/internal/shield/common/log"
	"github.com/haukened/rr-shield/internal/shield/common/utils"
	"github.com/haukened/rr-shield/internal/shield/domain"
)

// DefaultMaxRules mirrors the per-list limit of the platform content blocker.
const DefaultMaxRules = 150000

// engineListID is the ID of the single urlfilter list in every artifact.
const engineListID = 1

var (
	ErrTooManyRules  = errors.New("rule count exceeds limit")
	ErrEmptyRuleset  = errors.New("ruleset name must not be empty")
	ErrInvalidDomain = errors.New("invalid domain")
)

// Options configures a Compiler.
type Options struct {
	MaxRules int
	Logger   log.Logger
}

// Compiler validates generated rules and builds Artifacts. It is safe for
// concurrent use.
type Compiler struct {
	maxRules int
	logger   log.Logger
	compiled atomic.Uint64
}

// New returns a Compiler, filling unset Options with defaults.
func New(opts Options) *Compiler {
	if opts.MaxRules <= 0 {
		opts.MaxRules = DefaultMaxRules
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Compiler{maxRules: opts.MaxRules, logger: opts.Logger}
}

// Compiled returns the number of artifacts built so far.
func (c *Compiler) Compiled() uint64 { return c.compiled.Load() }

// Compile validates rules and returns a new *Artifact for the named ruleset.
func (c *Compiler) Compile(ctx context.Context, name string, rules []domain.BlockerRule) (domain.RuleArtifact, error) {
	if name == "" {
		return nil, ErrEmptyRuleset
	}
	if len(rules) > c.maxRules {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRules, len(rules), c.maxRules)
	}

	a := &Artifact{name: name, rules: make([]compiledRule, 0, len(rules))}
	var hosts strings.Builder
	for i, r := range rules {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cr, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		a.rules = append(a.rules, cr)

		if r.Action.Type != domain.ActionTypeBlock {
			continue
		}
		if cr.host == "" {
			a.unindexed = true
			continue
		}
		hosts.WriteString("||")
		hosts.WriteString(cr.host)
		hosts.WriteString("^\n")
	}

	storage, err := filterlist.NewRuleStorage([]filterlist.Interface{
		filterlist.NewBytes(&filterlist.BytesConfig{
			ID:             engineListID,
			RulesText:      []byte(hosts.String()),
			IgnoreCosmetic: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("build rule storage: %w", err)
	}
	a.engine = urlfilter.NewDNSEngine(storage)

	n := c.compiled.Add(1)
	c.logger.Debug(map[string]any{
		"ruleset":      name,
		"rules":        len(a.rules),
		"engine_rules": a.engine.RulesCount,
		"unindexed":    a.unindexed,
		"compiled":     n,
	}, "Ruleset compiled")

	return a, nil
}

func compileRule(r domain.BlockerRule) (compiledRule, error) {
	if err := r.Validate(); err != nil {
		return compiledRule{}, err
	}
	cr := compiledRule{
		action:     r.Action.Type,
		filter:     regexp.MustCompile(r.Trigger.URLFilter),
		thirdParty: r.Trigger.ThirdPartyOnly(),
	}
	if h := r.Trigger.TrackerHost; h != "" {
		host, err := asciiHost(h)
		if err != nil {
			return compiledRule{}, err
		}
		cr.host = host
	}
	var err error
	if cr.ifDomain, err = domainPatterns(r.Trigger.IfDomain); err != nil {
		return compiledRule{}, fmt.Errorf("if-domain: %w", err)
	}
	if cr.unlessDomain, err = domainPatterns(r.Trigger.UnlessDomain); err != nil {
		return compiledRule{}, fmt.Errorf("unless-domain: %w", err)
	}
	return cr, nil
}

func domainPatterns(in []string) ([]domainPattern, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]domainPattern, 0, len(in))
	for _, d := range in {
		p := domainPattern{}
		if strings.HasPrefix(d, "*") {
			p.subdomains = true
			d = d[1:]
		}
		host, err := asciiHost(d)
		if err != nil {
			return nil, err
		}
		p.host = host
		out = append(out, p)
	}
	return out, nil
}

// asciiHost canonicalises d and converts it to its IDNA ASCII form.
func asciiHost(d string) (string, error) {
	d = utils.CanonicalHost(d)
	if d == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDomain)
	}
	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidDomain, d, err)
	}
	return ascii, nil
}
