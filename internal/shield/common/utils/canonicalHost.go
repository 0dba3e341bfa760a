package utils

import "strings"

// CanonicalHost returns a host name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot
//
// Tracker data keys and lookup inputs both pass through it.
func CanonicalHost(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}
