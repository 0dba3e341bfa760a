package utils

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of name. Names that publicsuffix cannot
// reduce (single labels, bare suffixes) are returned canonicalised.
func RegistrableDomain(name string) string {
	name = CanonicalHost(name)
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}

// OwnerDomain returns name reduced to one label below its ICANN public
// suffix. Privately registered suffixes (cloudfront.net, blogspot.com) are
// not treated as suffixes, so "d1.cloudfront.net" yields "cloudfront.net"
// where RegistrableDomain keeps "d1.cloudfront.net".
func OwnerDomain(name string) string {
	name = CanonicalHost(name)
	if name == "" {
		return ""
	}
	suffix, icann := publicsuffix.PublicSuffix(name)
	for !icann {
		i := strings.IndexByte(suffix, '.')
		if i < 0 {
			break
		}
		suffix, icann = publicsuffix.PublicSuffix(suffix[i+1:])
	}
	if len(suffix) >= len(name) {
		return name
	}
	rest := strings.TrimSuffix(name, "."+suffix)
	if i := strings.LastIndexByte(rest, '.'); i >= 0 {
		rest = rest[i+1:]
	}
	return rest + "." + suffix
}

// HostSuffixes returns the candidate lookup keys for host, most specific
// first, ending at its owner domain. For "a.b.example.co.uk" that is
// [a.b.example.co.uk b.example.co.uk example.co.uk], and for
// "x.d1.cloudfront.net" it is [x.d1.cloudfront.net d1.cloudfront.net cloudfront.net].
func HostSuffixes(host string) []string {
	host = CanonicalHost(host)
	if host == "" {
		return nil
	}
	apex := OwnerDomain(host)
	out := []string{host}
	for cur := host; cur != apex; {
		i := strings.IndexByte(cur, '.')
		if i < 0 {
			break
		}
		cur = cur[i+1:]
		out = append(out, cur)
		if len(cur) <= len(apex) {
			break
		}
	}
	return out
}

// IsSubdomainOrSelf reports whether host equals parent or lies beneath it.
func IsSubdomainOrSelf(host, parent string) bool {
	host, parent = CanonicalHost(host), CanonicalHost(parent)
	if parent == "" {
		return false
	}
	return host == parent || strings.HasSuffix(host, "."+parent)
}
