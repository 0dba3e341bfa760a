package domain

import (
	"encoding/json"
	"regexp"
	"testing"
)

func TestBlockerActionType_Text(t *testing.T) {
	for _, a := range []BlockerActionType{ActionTypeBlock, ActionTypeIgnorePreviousRules} {
		b, err := a.MarshalText()
		if err != nil {
			t.Fatalf("marshal %v: %v", a, err)
		}
		var got BlockerActionType
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %q: %v", b, err)
		}
		if got != a {
			t.Fatalf("round trip %v -> %v", a, got)
		}
	}
	var a BlockerActionType
	if err := a.UnmarshalText([]byte("css-display-none")); err == nil {
		t.Fatal("expected error for unsupported action")
	}
	if s := BlockerActionType(9).String(); s != "BlockerActionType(9)" {
		t.Fatalf("unexpected string %q", s)
	}
}

func TestBlockerRule_JSONShape(t *testing.T) {
	r := BlockerRule{
		Trigger: BlockerTrigger{
			URLFilter:    HostURLFilter("tracker.com"),
			LoadType:     []string{LoadTypeThirdParty},
			UnlessDomain: []string{AnyDomain("tracker.com")},
			TrackerHost:  "tracker.com",
		},
		Action: BlockerAction{Type: ActionTypeBlock},
	}
	raw, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["action"]["type"] != "block" {
		t.Fatalf("action type = %v", m["action"]["type"])
	}
	if _, ok := m["trigger"]["TrackerHost"]; ok {
		t.Fatal("TrackerHost must not be serialised")
	}
	if _, ok := m["trigger"]["if-domain"]; ok {
		t.Fatal("empty if-domain must be omitted")
	}
}

func TestBlockerRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    BlockerRule
		wantErr bool
	}{
		{"host filter", BlockerRule{Trigger: BlockerTrigger{URLFilter: HostURLFilter("a.com")}}, false},
		{"empty filter", BlockerRule{Trigger: BlockerTrigger{URLFilter: " "}}, true},
		{"bad regexp", BlockerRule{Trigger: BlockerTrigger{URLFilter: "([a-"}}, true},
		{"if and unless", BlockerRule{Trigger: BlockerTrigger{URLFilter: ".*", IfDomain: []string{"a.com"}, UnlessDomain: []string{"b.com"}}}, true},
		{"bad load type", BlockerRule{Trigger: BlockerTrigger{URLFilter: ".*", LoadType: []string{"fourth-party"}}}, true},
		{"third party", BlockerRule{Trigger: BlockerTrigger{URLFilter: ".*", LoadType: []string{LoadTypeThirdParty}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHostURLFilter(t *testing.T) {
	re := regexp.MustCompile(HostURLFilter("tracker.com"))
	match := []string{
		"https://tracker.com",
		"https://tracker.com/",
		"http://sub.tracker.com/pixel.gif?x=1",
		"wss://a.b.tracker.com:8443/socket",
	}
	noMatch := []string{
		"https://eviltracker.com/",
		"https://tracker.com.evil.org/",
		"ftp://tracker.com/",
	}
	for _, u := range match {
		if !re.MatchString(u) {
			t.Errorf("expected %q to match", u)
		}
	}
	for _, u := range noMatch {
		if re.MatchString(u) {
			t.Errorf("expected %q not to match", u)
		}
	}
}

func TestRuleURLFilter(t *testing.T) {
	re := regexp.MustCompile(RuleURLFilter(`tracker\.com/ads/.*`))
	if !re.MatchString("https://cdn.tracker.com/ads/banner.js") {
		t.Fatal("expected rule filter to match ads path")
	}
	if re.MatchString("https://tracker.com/content/page") {
		t.Fatal("rule filter must not match other paths")
	}
}

func TestTrigger_ThirdPartyOnly(t *testing.T) {
	if (BlockerTrigger{}).ThirdPartyOnly() {
		t.Fatal("empty load-type is not third-party only")
	}
	if !(BlockerTrigger{LoadType: []string{LoadTypeThirdParty}}).ThirdPartyOnly() {
		t.Fatal("expected third-party only")
	}
}
