package domain

import (
	"fmt"
	"strings"
)

// ChangeReason enumerates the settings changes that require generated scripts
// to be rebuilt.
type ChangeReason uint8

const (
	ChangeDoNotSell ChangeReason = iota
	ChangeLoginPreservation
	ChangeAutofillEnabled
	ChangeTextSize
	ChangeInternalUserVerified
	ChangeStorageCache
)

var changeReasonNames = [...]string{
	ChangeDoNotSell:            "do_not_sell",
	ChangeLoginPreservation:    "login_preservation",
	ChangeAutofillEnabled:      "autofill_enabled",
	ChangeTextSize:             "text_size",
	ChangeInternalUserVerified: "internal_user_verified",
	ChangeStorageCache:         "storage_cache",
}

// String returns a stable string representation of the reason.
func (r ChangeReason) String() string {
	if int(r) < len(changeReasonNames) {
		return changeReasonNames[r]
	}
	return fmt.Sprintf("ChangeReason(%d)", r)
}

// ParseChangeReason converts a string into a ChangeReason (case-insensitive).
func ParseChangeReason(s string) (ChangeReason, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range changeReasonNames {
		if n == s {
			return ChangeReason(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported ChangeReason: %q", s)
}

// AllChangeReasons returns every defined reason in declaration order.
func AllChangeReasons() []ChangeReason {
	out := make([]ChangeReason, len(changeReasonNames))
	for i := range changeReasonNames {
		out[i] = ChangeReason(i)
	}
	return out
}

// SettingsSnapshot is the subset of user settings that generated scripts
// depend on.
type SettingsSnapshot struct {
	DoNotSell            bool
	PreservedLogins      []string // domains whose logins are preserved on fire
	LoginDetection       bool
	AutofillEnabled      bool
	TextSizePercent      int
	InternalUserVerified bool
	StorageCacheEpoch    uint64
}
