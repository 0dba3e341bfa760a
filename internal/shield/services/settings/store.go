package settings

import (
	"slices"
	"sync"

	"github.com/haukened/rr-shield/internal/shield/domain"
)

// Store exposes the current settings. The coordinator re-reads it on every
// change notification.
type Store interface {
	Snapshot() domain.SettingsSnapshot
}

// MemoryStore is an in-process Store whose setters publish the matching
// ChangeReason on the bus. Setters that do not change a value stay silent.
type MemoryStore struct {
	mu   sync.RWMutex
	snap domain.SettingsSnapshot
	bus  *Bus
}

// DefaultSnapshot is the settings state of a fresh install.
func DefaultSnapshot() domain.SettingsSnapshot {
	return domain.SettingsSnapshot{
		LoginDetection:  true,
		AutofillEnabled: true,
		TextSizePercent: 100,
	}
}

// NewMemoryStore returns a store seeded with initial. bus may be nil.
func NewMemoryStore(initial domain.SettingsSnapshot, bus *Bus) *MemoryStore {
	initial.PreservedLogins = slices.Clone(initial.PreservedLogins)
	return &MemoryStore{snap: initial, bus: bus}
}

// Snapshot returns a copy of the current settings.
func (s *MemoryStore) Snapshot() domain.SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.PreservedLogins = slices.Clone(s.snap.PreservedLogins)
	return out
}

// SetDoNotSell toggles the Global Privacy Control signal.
func (s *MemoryStore) SetDoNotSell(v bool) {
	s.update(domain.ChangeDoNotSell, func(sn *domain.SettingsSnapshot) bool {
		if sn.DoNotSell == v {
			return false
		}
		sn.DoNotSell = v
		return true
	})
}

// SetLoginPreservation replaces the preserved login domains and the
// login-detection toggle.
func (s *MemoryStore) SetLoginPreservation(detection bool, domains []string) {
	domains = slices.Clone(domains)
	slices.Sort(domains)
	domains = slices.Compact(domains)
	s.update(domain.ChangeLoginPreservation, func(sn *domain.SettingsSnapshot) bool {
		if sn.LoginDetection == detection && slices.Equal(sn.PreservedLogins, domains) {
			return false
		}
		sn.LoginDetection = detection
		sn.PreservedLogins = domains
		return true
	})
}

// SetAutofillEnabled toggles the autofill script.
func (s *MemoryStore) SetAutofillEnabled(v bool) {
	s.update(domain.ChangeAutofillEnabled, func(sn *domain.SettingsSnapshot) bool {
		if sn.AutofillEnabled == v {
			return false
		}
		sn.AutofillEnabled = v
		return true
	})
}

// SetTextSize clamps percent to [50, 300].
func (s *MemoryStore) SetTextSize(percent int) {
	percent = min(max(percent, 50), 300)
	s.update(domain.ChangeTextSize, func(sn *domain.SettingsSnapshot) bool {
		if sn.TextSizePercent == percent {
			return false
		}
		sn.TextSizePercent = percent
		return true
	})
}

// SetInternalUserVerified toggles debug output in the generated scripts.
func (s *MemoryStore) SetInternalUserVerified(v bool) {
	s.update(domain.ChangeInternalUserVerified, func(sn *domain.SettingsSnapshot) bool {
		if sn.InternalUserVerified == v {
			return false
		}
		sn.InternalUserVerified = v
		return true
	})
}

// BumpStorageCache advances the storage-cache epoch. It always publishes.
func (s *MemoryStore) BumpStorageCache() uint64 {
	var epoch uint64
	s.update(domain.ChangeStorageCache, func(sn *domain.SettingsSnapshot) bool {
		sn.StorageCacheEpoch++
		epoch = sn.StorageCacheEpoch
		return true
	})
	return epoch
}

func (s *MemoryStore) update(reason domain.ChangeReason, fn func(*domain.SettingsSnapshot) bool) {
	s.mu.Lock()
	changed := fn(&s.snap)
	s.mu.Unlock()

	if changed && s.bus != nil {
		s.bus.Publish(reason)
	}
}
