package scripts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/haukened/rr-shield/internal/shield/domain"
)

func configOf(t *testing.T, b *domain.ScriptBundle, name string) gjson.Result {
	t.Helper()
	s, ok := b.Script(name)
	require.True(t, ok, "script %s missing", name)
	start := strings.Index(s.Source, "]=")
	end := strings.LastIndex(s.Source, ";})();")
	require.True(t, start > 0 && end > start, "unexpected script shape: %s", s.Source)
	raw := s.Source[start+2 : end]
	require.True(t, gjson.Valid(raw), "invalid config json: %s", raw)
	return gjson.Parse(raw)
}

func names(b *domain.ScriptBundle) []string {
	out := make([]string, 0, len(b.Scripts))
	for _, s := range b.Scripts {
		out = append(out, s.Name)
	}
	return out
}

func testEvent() domain.UpdateEvent {
	return eventWithLists(domain.ProtectionLists{})
}

func eventWithLists(lists domain.ProtectionLists) domain.UpdateEvent {
	return domain.UpdateEvent{
		Rules: map[string]*domain.CompiledRules{
			"test": {
				Name:               "test",
				EncodedTrackerData: `{"trackers":{"tracker.com":{"domain":"tracker.com"}}}`,
				ETag:               "asd",
				Protection:         lists,
			},
			"v1.strict": {
				Name:               "v1.strict",
				EncodedTrackerData: `{"trackers":{}}`,
				ETag:               "e2",
				Protection:         lists,
			},
		},
	}
}

func TestBuild_DefaultSettings(t *testing.T) {
	b := NewBuilder(Options{})
	bundle, err := b.Build(domain.SettingsSnapshot{LoginDetection: true, AutofillEnabled: true, TextSizePercent: 100}, domain.UpdateEvent{})
	require.NoError(t, err)

	assert.Equal(t, []string{ContentBlocker, LoginDetection, Autofill, TextSize, StorageCache}, names(bundle))
	assert.False(t, bundle.IsEmpty())
	assert.Equal(t, int64(100), configOf(t, bundle, TextSize).Get("percent").Int())
	assert.Equal(t, uint64(1), b.Builds())
}

func TestBuild_ConditionalScripts(t *testing.T) {
	tests := []struct {
		name     string
		snap     domain.SettingsSnapshot
		wantGPC  bool
		wantFill bool
	}{
		{"nothing", domain.SettingsSnapshot{}, false, false},
		{"do not sell", domain.SettingsSnapshot{DoNotSell: true}, true, false},
		{"autofill", domain.SettingsSnapshot{AutofillEnabled: true}, false, true},
		{"both", domain.SettingsSnapshot{DoNotSell: true, AutofillEnabled: true}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := NewBuilder(Options{}).Build(tt.snap, domain.UpdateEvent{})
			require.NoError(t, err)
			_, gpc := bundle.Script(GPC)
			_, fill := bundle.Script(Autofill)
			assert.Equal(t, tt.wantGPC, gpc)
			assert.Equal(t, tt.wantFill, fill)
		})
	}
}

func TestBuild_ContentBlockerConfig(t *testing.T) {
	lists := domain.ProtectionLists{
		TempUnprotected:  []string{"temp.com"},
		AllowList:        []string{"allowed.com"},
		UnprotectedSites: []string{"mine.com"},
	}
	b := NewBuilder(Options{})

	bundle, err := b.Build(domain.SettingsSnapshot{InternalUserVerified: true}, eventWithLists(lists))
	require.NoError(t, err)

	cfg := configOf(t, bundle, ContentBlocker)
	assert.True(t, cfg.Get("debug").Bool())
	assert.Equal(t, "temp.com", cfg.Get("tempUnprotectedDomains.0").String())
	assert.Equal(t, "allowed.com", cfg.Get("allowList.0").String())
	assert.Equal(t, "mine.com", cfg.Get("userUnprotectedDomains.0").String())
	assert.Equal(t, "tracker.com", cfg.Get(`trackerData.test.trackers.tracker\.com.domain`).String())
	assert.Equal(t, "asd", cfg.Get("etags.test").String())
	assert.Equal(t, "e2", cfg.Get(`etags.v1\.strict`).String())
	assert.True(t, cfg.Get(`trackerData.v1\.strict.trackers`).IsObject())
}

func TestBuild_ListsComeFromCompiledRules(t *testing.T) {
	ev := eventWithLists(domain.ProtectionLists{AllowList: []string{"compiled.com"}})

	bundle, err := NewBuilder(Options{}).Build(domain.SettingsSnapshot{}, ev)
	require.NoError(t, err)
	cfg := configOf(t, bundle, ContentBlocker)
	assert.Equal(t, "compiled.com", cfg.Get("allowList.0").String())
	assert.Equal(t, int64(1), cfg.Get("allowList.#").Int())
	assert.Equal(t, int64(0), cfg.Get("tempUnprotectedDomains.#").Int())
}

func TestBuild_InternalUserTogglesDebug(t *testing.T) {
	b := NewBuilder(Options{})
	off, err := b.Build(domain.SettingsSnapshot{}, domain.UpdateEvent{})
	require.NoError(t, err)
	on, err := b.Build(domain.SettingsSnapshot{InternalUserVerified: true}, domain.UpdateEvent{})
	require.NoError(t, err)

	assert.False(t, configOf(t, off, ContentBlocker).Get("debug").Bool())
	assert.True(t, configOf(t, on, ContentBlocker).Get("debug").Bool())
}

func TestBuild_LoginAndStorageCache(t *testing.T) {
	snap := domain.SettingsSnapshot{
		LoginDetection:    true,
		PreservedLogins:   []string{"bank.com", "mail.com"},
		StorageCacheEpoch: 7,
	}
	bundle, err := NewBuilder(Options{}).Build(snap, domain.UpdateEvent{})
	require.NoError(t, err)

	login := configOf(t, bundle, LoginDetection)
	assert.True(t, login.Get("enabled").Bool())
	assert.Equal(t, int64(2), login.Get("preserved.#").Int())
	assert.Equal(t, uint64(7), configOf(t, bundle, StorageCache).Get("epoch").Uint())
	assert.Equal(t, snap, bundle.Settings)
}

func TestBuild_NewInstanceEveryCall(t *testing.T) {
	b := NewBuilder(Options{})
	snap := domain.SettingsSnapshot{TextSizePercent: 100}

	first, err := b.Build(snap, testEvent())
	require.NoError(t, err)
	second, err := b.Build(snap, testEvent())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, first.Scripts, second.Scripts)
	assert.Equal(t, uint64(2), b.Builds())
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, `a\.b`, escapePath("a.b"))
	assert.Equal(t, `x\*y\?`, escapePath("x*y?"))
	assert.Equal(t, "plain", escapePath("plain"))
}
