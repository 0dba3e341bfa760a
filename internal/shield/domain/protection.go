package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// ProtectionLists holds the site lists that switch protection off, together
// with the version tags of the remotely configured ones.
//
// TempUnprotected and AllowList come from the privacy configuration and carry
// their own etags. UnprotectedSites is the user's own list and is identified
// by a content hash instead.
type ProtectionLists struct {
	TempUnprotected  []string
	TempListEtag     string
	AllowList        []string
	AllowListEtag    string
	UnprotectedSites []string
}

// UnprotectedSitesHash returns a hash of the user's unprotected sites that is
// independent of order and duplicates. It returns "" for an empty list.
func (p ProtectionLists) UnprotectedSitesHash() string {
	sites := normalizeSites(p.UnprotectedSites)
	if len(sites) == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join(sites, "\n")))
	return hex.EncodeToString(sum[:])
}

// IgnoredSites returns the sorted, de-duplicated union of every list that
// disables protection on a site.
func (p ProtectionLists) IgnoredSites() []string {
	all := make([]string, 0, len(p.TempUnprotected)+len(p.AllowList)+len(p.UnprotectedSites))
	all = append(all, p.TempUnprotected...)
	all = append(all, p.AllowList...)
	all = append(all, p.UnprotectedSites...)
	return normalizeSites(all)
}

func normalizeSites(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "."))
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
