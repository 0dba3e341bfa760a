package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// BlockerActionType defines what a content-blocker rule does when its trigger
// matches.
//
// block                 - the request is blocked
// ignore-previous-rules - earlier matching rules are cancelled
type BlockerActionType uint8

const (
	// ActionTypeBlock blocks the matching request.
	ActionTypeBlock BlockerActionType = iota
	// ActionTypeIgnorePreviousRules cancels earlier matching rules.
	ActionTypeIgnorePreviousRules
)

// String returns the content-blocker JSON name of the action.
func (a BlockerActionType) String() string {
	switch a {
	case ActionTypeBlock:
		return "block"
	case ActionTypeIgnorePreviousRules:
		return "ignore-previous-rules"
	default:
		return fmt.Sprintf("BlockerActionType(%d)", a)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a BlockerActionType) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *BlockerActionType) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "block":
		*a = ActionTypeBlock
	case "ignore-previous-rules":
		*a = ActionTypeIgnorePreviousRules
	default:
		return fmt.Errorf("unsupported BlockerActionType: %q", b)
	}
	return nil
}

// LoadTypeThirdParty restricts a trigger to third-party loads.
const LoadTypeThirdParty = "third-party"

// BlockerTrigger selects the requests a rule applies to.
//
// Domain lists use the content-blocker convention: a leading "*" matches the
// domain and all of its subdomains, otherwise the match is exact.
type BlockerTrigger struct {
	URLFilter    string   `json:"url-filter"`
	LoadType     []string `json:"load-type,omitempty"`
	IfDomain     []string `json:"if-domain,omitempty"`
	UnlessDomain []string `json:"unless-domain,omitempty"`

	// TrackerHost is the tracker domain the rule was generated for, if any.
	// It is not part of the content-blocker JSON.
	TrackerHost string `json:"-"`
}

// BlockerAction is the action half of a rule.
type BlockerAction struct {
	Type BlockerActionType `json:"type"`
}

// BlockerRule is one content-blocker rule. Rules are evaluated in order.
type BlockerRule struct {
	Trigger BlockerTrigger `json:"trigger"`
	Action  BlockerAction  `json:"action"`
}

// Validate checks that the rule can be compiled.
func (r BlockerRule) Validate() error {
	if strings.TrimSpace(r.Trigger.URLFilter) == "" {
		return fmt.Errorf("url-filter must not be empty")
	}
	if _, err := regexp.Compile(r.Trigger.URLFilter); err != nil {
		return fmt.Errorf("url-filter %q: %w", r.Trigger.URLFilter, err)
	}
	if len(r.Trigger.IfDomain) > 0 && len(r.Trigger.UnlessDomain) > 0 {
		return fmt.Errorf("if-domain and unless-domain are mutually exclusive")
	}
	for _, lt := range r.Trigger.LoadType {
		if lt != LoadTypeThirdParty && lt != "first-party" {
			return fmt.Errorf("unsupported load-type: %q", lt)
		}
	}
	return nil
}

// ThirdPartyOnly reports whether the trigger is restricted to third-party
// loads.
func (t BlockerTrigger) ThirdPartyOnly() bool {
	for _, lt := range t.LoadType {
		if lt == LoadTypeThirdParty {
			return true
		}
	}
	return false
}

const urlPrefix = `^(https?|wss?)://([a-z0-9-]+\.)*`

// HostURLFilter returns a url-filter matching host and any of its subdomains
// over http(s) and ws(s).
func HostURLFilter(host string) string {
	return urlPrefix + regexp.QuoteMeta(host) + `(:[0-9]+)?([/?#].*)?$`
}

// RuleURLFilter anchors a tracker rule expression, which starts at the host,
// to the same schemes as HostURLFilter.
func RuleURLFilter(rule string) string {
	return urlPrefix + rule
}

// AnyDomain returns the content-blocker domain form matching d and its
// subdomains.
func AnyDomain(d string) string { return "*" + d }
