package nativecompiler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/AdguardTeam/urlfilter"
	"github.com/miekg/dns"

	"github.com/haukened/rr-shield/internal/shield/common/utils"
	"github.com/haukened/rr-shield/internal/shield/domain"
)

type domainPattern struct {
	host       string
	subdomains bool
}

func (p domainPattern) matches(host string) bool {
	if p.subdomains {
		return utils.IsSubdomainOrSelf(host, p.host)
	}
	return host == p.host
}

type compiledRule struct {
	action       domain.BlockerActionType
	filter       *regexp.Regexp
	host         string
	thirdParty   bool
	ifDomain     []domainPattern
	unlessDomain []domainPattern
}

func (r *compiledRule) applies(rawURL, page string, thirdParty bool) bool {
	if r.thirdParty && !thirdParty {
		return false
	}
	if len(r.ifDomain) > 0 && !anyMatch(r.ifDomain, page) {
		return false
	}
	if anyMatch(r.unlessDomain, page) {
		return false
	}
	return r.filter.MatchString(rawURL)
}

func anyMatch(ps []domainPattern, host string) bool {
	for _, p := range ps {
		if p.matches(host) {
			return true
		}
	}
	return false
}

// Artifact is the compiled form of one ruleset. It is immutable and safe for
// concurrent use.
type Artifact struct {
	name  string
	rules []compiledRule

	// engine holds a ||host^ rule for every indexed block rule and answers
	// whether any block rule can apply to a host at all.
	engine    *urlfilter.DNSEngine
	unindexed bool
}

var _ domain.RuleArtifact = (*Artifact)(nil)

// Name implements domain.RuleArtifact.
func (a *Artifact) Name() string { return a.name }

// RulesCount implements domain.RuleArtifact.
func (a *Artifact) RulesCount() int { return len(a.rules) }

// EngineRulesCount returns the number of host rules loaded in the engine.
func (a *Artifact) EngineRulesCount() int { return a.engine.RulesCount }

// Blocks reports whether a request for request, loaded by a page on
// pageHost, is blocked. request may be a URL or a bare host.
func (a *Artifact) Blocks(request, pageHost string) bool {
	rawURL, host := normalizeRequest(request)
	if host == "" {
		return false
	}
	if !a.unindexed && !a.indexed(host) {
		return false
	}

	page := utils.CanonicalHost(pageHost)
	thirdParty := page == "" || utils.RegistrableDomain(host) != utils.RegistrableDomain(page)

	blocked := false
	for i := range a.rules {
		r := &a.rules[i]
		if !r.applies(rawURL, page, thirdParty) {
			continue
		}
		blocked = r.action == domain.ActionTypeBlock
	}
	return blocked
}

func (a *Artifact) indexed(host string) bool {
	res, ok := a.engine.MatchRequest(&urlfilter.DNSRequest{
		Hostname: host,
		DNSType:  dns.TypeA,
	})
	if ok && res.NetworkRule != nil {
		return !res.NetworkRule.Whitelist
	}
	return ok
}

func normalizeRequest(request string) (rawURL, host string) {
	request = strings.TrimSpace(request)
	if !strings.Contains(request, "://") {
		request = "https://" + request
	}
	u, err := url.Parse(request)
	if err != nil {
		return "", ""
	}
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), utils.CanonicalHost(u.Hostname())
}
