package tds

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/haukened/rr-shield/internal/shield/domain"
)

type wireDoc struct {
	Trackers map[string]wireTracker `json:"trackers"`
	Entities map[string]wireEntity  `json:"entities"`
	Domains  map[string]string      `json:"domains"`
	CNAMEs   map[string]string      `json:"cnames,omitempty"`
}

type wireEntity struct {
	DisplayName string   `json:"displayName"`
	Domains     []string `json:"domains"`
	Prevalence  float64  `json:"prevalence"`
}

type wireOwner struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type wireTracker struct {
	Domain     string     `json:"domain"`
	Default    string     `json:"default"`
	Owner      wireOwner  `json:"owner"`
	Prevalence float64    `json:"prevalence"`
	Subdomains []string   `json:"subdomains,omitempty"`
	Categories []string   `json:"categories"`
	Rules      []wireRule `json:"rules,omitempty"`
}

type wireRule struct {
	Rule       string          `json:"rule"`
	Action     string          `json:"action,omitempty"`
	Exceptions *wireExceptions `json:"exceptions,omitempty"`
}

type wireExceptions struct {
	Domains []string `json:"domains"`
}

// Encode renders ds as RFC 8785 canonical JSON in the TDS layout, so equal
// datasets always encode to identical bytes. Parse(Encode(ds)) yields ds.
func Encode(ds *domain.TrackerDataSet) ([]byte, error) {
	if ds == nil {
		return nil, fmt.Errorf("encode tracker data: nil dataset")
	}
	doc := wireDoc{
		Trackers: make(map[string]wireTracker, len(ds.Trackers)),
		Entities: make(map[string]wireEntity, len(ds.Entities)),
		Domains:  ds.Domains,
		CNAMEs:   ds.CNAMEs,
	}
	for name, e := range ds.Entities {
		doc.Entities[name] = wireEntity{DisplayName: e.DisplayName, Domains: nonNil(e.Domains), Prevalence: e.Prevalence}
	}
	for host, t := range ds.Trackers {
		wt := wireTracker{
			Domain:     t.Domain,
			Default:    t.DefaultAction.String(),
			Owner:      wireOwner{Name: t.Owner.Name, DisplayName: t.Owner.DisplayName},
			Prevalence: t.Prevalence,
			Subdomains: t.Subdomains,
			Categories: nonNil(t.Categories),
		}
		for _, r := range t.Rules {
			wr := wireRule{Rule: r.Rule}
			if r.Action == domain.ActionIgnore {
				wr.Action = r.Action.String()
			}
			if len(r.Exceptions) > 0 {
				wr.Exceptions = &wireExceptions{Domains: r.Exceptions}
			}
			wt.Rules = append(wt.Rules, wr)
		}
		doc.Trackers[host] = wt
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode tracker data: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize tracker data: %w", err)
	}
	return canon, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
