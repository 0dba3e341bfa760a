// Package tds parses Tracker Radar "TDS" documents into domain.TrackerDataSet
// values. Parsing is tolerant: malformed entries are dropped and counted, and
// only a structurally broken document is an error.
package tds

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/haukened/rr-shield/internal/shield/common/utils"
	"github.com/haukened/rr-shield/internal/shield/domain"
)

var (
	// ErrInvalidJSON is returned when the input is not a JSON document.
	ErrInvalidJSON = errors.New("tracker data is not valid JSON")
	// ErrMissingSection is returned when a required top-level object is absent.
	ErrMissingSection = errors.New("tracker data section missing")
)

// Report counts entries the parser dropped or repaired.
type Report struct {
	DroppedEntities   int // empty entity names
	DroppedDomains    int // domain entries pointing at unknown entities
	DroppedTrackers   int // tracker entries without a usable domain
	DefaultedNames    int // entities whose display name fell back to their key
	ClampedPrevalence int // prevalence values outside [0,1]
}

// Parse decodes raw into a TrackerDataSet.
//
// Normalisation:
//   - domain keys are canonicalised (lower case, no trailing dot)
//   - an entity with an empty displayName takes its key as display name
//   - an entity with an empty key is dropped
//   - domains entries pointing at unknown entities are dropped
//   - prevalence is clamped to [0,1]
func Parse(raw []byte) (*domain.TrackerDataSet, Report, error) {
	var rep Report
	if !gjson.ValidBytes(raw) {
		return nil, rep, ErrInvalidJSON
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, rep, ErrInvalidJSON
	}
	trackers := root.Get("trackers")
	if !trackers.IsObject() {
		return nil, rep, fmt.Errorf("%w: trackers", ErrMissingSection)
	}
	entities := root.Get("entities")
	if !entities.IsObject() {
		return nil, rep, fmt.Errorf("%w: entities", ErrMissingSection)
	}

	ds := domain.EmptyTrackerDataSet()
	parseEntities(entities, ds, &rep)
	parseDomains(root.Get("domains"), ds, &rep)
	parseTrackers(trackers, ds, &rep)
	parseCNAMEs(root.Get("cnames"), ds)

	if err := ds.Validate(); err != nil {
		return nil, rep, err
	}
	return ds, rep, nil
}

func parseEntities(v gjson.Result, ds *domain.TrackerDataSet, rep *Report) {
	v.ForEach(func(key, val gjson.Result) bool {
		name := strings.TrimSpace(key.String())
		if name == "" {
			rep.DroppedEntities++
			return true
		}
		display := strings.TrimSpace(val.Get("displayName").String())
		if display == "" {
			display = name
			rep.DefaultedNames++
		}
		ds.Entities[name] = domain.Entity{
			DisplayName: display,
			Domains:     hostList(val.Get("domains")),
			Prevalence:  clamp(val.Get("prevalence").Float(), rep),
		}
		return true
	})
}

func parseDomains(v gjson.Result, ds *domain.TrackerDataSet, rep *Report) {
	v.ForEach(func(key, val gjson.Result) bool {
		host := utils.CanonicalHost(key.String())
		owner := strings.TrimSpace(val.String())
		if _, ok := ds.Entities[owner]; !ok || host == "" {
			rep.DroppedDomains++
			return true
		}
		ds.Domains[host] = owner
		return true
	})
}

func parseTrackers(v gjson.Result, ds *domain.TrackerDataSet, rep *Report) {
	v.ForEach(func(key, val gjson.Result) bool {
		host := utils.CanonicalHost(key.String())
		if host == "" {
			host = utils.CanonicalHost(val.Get("domain").String())
		}
		if host == "" {
			rep.DroppedTrackers++
			return true
		}
		action, err := domain.ParseDefaultAction(val.Get("default").String())
		if err != nil {
			action = domain.ActionBlock
		}
		ds.Trackers[host] = domain.Tracker{
			Domain:        host,
			DefaultAction: action,
			Owner: domain.Owner{
				Name:        val.Get("owner.name").String(),
				DisplayName: val.Get("owner.displayName").String(),
			},
			Prevalence: clamp(val.Get("prevalence").Float(), rep),
			Subdomains: stringList(val.Get("subdomains")),
			Categories: stringList(val.Get("categories")),
			Rules:      parseRules(val.Get("rules")),
		}
		return true
	})
}

func parseRules(v gjson.Result) []domain.TrackerRule {
	if !v.IsArray() {
		return nil
	}
	var out []domain.TrackerRule
	v.ForEach(func(_, r gjson.Result) bool {
		src := r.Get("rule").String()
		if src == "" {
			return true
		}
		action := domain.ActionBlock
		if a := r.Get("action").String(); a != "" {
			if parsed, err := domain.ParseDefaultAction(a); err == nil {
				action = parsed
			}
		}
		out = append(out, domain.TrackerRule{
			Rule:       src,
			Action:     action,
			Exceptions: hostList(r.Get("exceptions.domains")),
		})
		return true
	})
	return out
}

func parseCNAMEs(v gjson.Result, ds *domain.TrackerDataSet) {
	v.ForEach(func(key, val gjson.Result) bool {
		alias, target := utils.CanonicalHost(key.String()), utils.CanonicalHost(val.String())
		if alias != "" && target != "" && alias != target {
			ds.CNAMEs[alias] = target
		}
		return true
	})
}

func hostList(v gjson.Result) []string {
	var out []string
	v.ForEach(func(_, d gjson.Result) bool {
		if h := utils.CanonicalHost(d.String()); h != "" {
			out = append(out, h)
		}
		return true
	})
	return out
}

func stringList(v gjson.Result) []string {
	var out []string
	v.ForEach(func(_, s gjson.Result) bool {
		if str := strings.TrimSpace(s.String()); str != "" {
			out = append(out, str)
		}
		return true
	})
	return out
}

func clamp(p float64, rep *Report) float64 {
	switch {
	case p < 0:
		rep.ClampedPrevalence++
		return 0
	case p > 1:
		rep.ClampedPrevalence++
		return 1
	default:
		return p
	}
}
