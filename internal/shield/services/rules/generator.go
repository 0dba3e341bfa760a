package rules

import (
	"maps"
	"slices"

	"github.com/haukened/rr-shield/internal/shield/domain"
)

// Generate builds content-blocker rules for ds, in evaluation order:
//
//  1. a third-party block rule per tracker whose default action is block,
//     unless the page belongs to the tracker's owner
//  2. block rules for the explicit rules of every tracker
//  3. ignore-previous-rules for each tracker rule's exception domains
//  4. one trailing ignore-previous-rules rule for every unprotected site
func Generate(ds *domain.TrackerDataSet, lists domain.ProtectionLists) []domain.BlockerRule {
	var out []domain.BlockerRule
	for _, host := range slices.Sorted(maps.Keys(ds.Trackers)) {
		t := ds.Trackers[host]
		owned := ownerDomains(ds, host, t)

		if t.DefaultAction == domain.ActionBlock {
			out = append(out, domain.BlockerRule{
				Trigger: domain.BlockerTrigger{
					URLFilter:    domain.HostURLFilter(host),
					LoadType:     []string{domain.LoadTypeThirdParty},
					UnlessDomain: owned,
					TrackerHost:  host,
				},
				Action: domain.BlockerAction{Type: domain.ActionTypeBlock},
			})
		}

		for _, r := range t.Rules {
			filter := domain.RuleURLFilter(r.Rule)
			if r.Action == domain.ActionBlock {
				out = append(out, domain.BlockerRule{
					Trigger: domain.BlockerTrigger{
						URLFilter:    filter,
						LoadType:     []string{domain.LoadTypeThirdParty},
						UnlessDomain: owned,
						TrackerHost:  host,
					},
					Action: domain.BlockerAction{Type: domain.ActionTypeBlock},
				})
			} else {
				out = append(out, ignore(filter, nil))
			}
			if len(r.Exceptions) > 0 {
				out = append(out, ignore(filter, wildcard(r.Exceptions)))
			}
		}
	}

	if sites := lists.IgnoredSites(); len(sites) > 0 {
		out = append(out, ignore(".*", wildcard(sites)))
	}
	return out
}

func ignore(filter string, ifDomain []string) domain.BlockerRule {
	return domain.BlockerRule{
		Trigger: domain.BlockerTrigger{URLFilter: filter, IfDomain: ifDomain},
		Action:  domain.BlockerAction{Type: domain.ActionTypeIgnorePreviousRules},
	}
}

// ownerDomains returns the wildcard domains of the tracker's owning entity,
// always including the tracker's own domain.
func ownerDomains(ds *domain.TrackerDataSet, host string, t domain.Tracker) []string {
	set := map[string]struct{}{host: {}}
	if e, ok := ds.Entities[t.Owner.Name]; ok {
		for _, d := range e.Domains {
			if d != "" {
				set[d] = struct{}{}
			}
		}
	}
	return wildcard(slices.Sorted(maps.Keys(set)))
}

func wildcard(ds []string) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, domain.AnyDomain(d))
	}
	return out
}
