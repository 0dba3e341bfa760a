// Package scripts builds the generated page-script bundle published with
// every ContentBlockingAssets value.
package scripts

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/tidwall/sjson"

	"github.com/haukened/rr-shield/internal/shield/common/log"
	"github.com/haukened/rr-shield/internal/shield/domain"
)

// Script names.
const (
	ContentBlocker = "contentblocker"
	GPC            = "gpc"
	LoginDetection = "logindetection"
	Autofill       = "autofill"
	TextSize       = "textsize"
	StorageCache   = "storagecache"
)

// Options configures a Builder.
type Options struct {
	Logger log.Logger
}

// Builder turns a settings snapshot and the latest rules event into a
// ScriptBundle. The site lists in the content-blocker config come from the
// event, never from the live protection repository.
type Builder struct {
	logger log.Logger
	builds atomic.Uint64
}

// NewBuilder returns a Builder. A nil Logger is replaced by a noop logger.
func NewBuilder(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Builder{logger: opts.Logger}
}

// Builds returns the number of bundles built so far.
func (b *Builder) Builds() uint64 { return b.builds.Load() }

// Build returns a new bundle on every call, even for identical inputs.
func (b *Builder) Build(snap domain.SettingsSnapshot, ev domain.UpdateEvent) (*domain.ScriptBundle, error) {
	cb, err := contentBlockerConfig(snap, ev, ev.ProtectionLists())
	if err != nil {
		return nil, fmt.Errorf("build %s config: %w", ContentBlocker, err)
	}
	scripts := []domain.Script{
		{Name: ContentBlocker, Source: wrap(ContentBlocker, cb), InjectAtStart: true},
	}

	if snap.DoNotSell {
		cfg, err := setAll(`{}`, kv{"enabled", true})
		if err != nil {
			return nil, fmt.Errorf("build %s config: %w", GPC, err)
		}
		scripts = append(scripts, domain.Script{Name: GPC, Source: wrap(GPC, cfg), InjectAtStart: true})
	}

	preserved := snap.PreservedLogins
	if preserved == nil {
		preserved = []string{}
	}
	cfg, err := setAll(`{}`, kv{"enabled", snap.LoginDetection}, kv{"preserved", preserved})
	if err != nil {
		return nil, fmt.Errorf("build %s config: %w", LoginDetection, err)
	}
	scripts = append(scripts, domain.Script{Name: LoginDetection, Source: wrap(LoginDetection, cfg)})

	if snap.AutofillEnabled {
		cfg, err := setAll(`{}`, kv{"enabled", true}, kv{"debug", snap.InternalUserVerified})
		if err != nil {
			return nil, fmt.Errorf("build %s config: %w", Autofill, err)
		}
		scripts = append(scripts, domain.Script{Name: Autofill, Source: wrap(Autofill, cfg)})
	}

	cfg, err = setAll(`{}`, kv{"percent", snap.TextSizePercent})
	if err != nil {
		return nil, fmt.Errorf("build %s config: %w", TextSize, err)
	}
	scripts = append(scripts, domain.Script{Name: TextSize, Source: wrap(TextSize, cfg), MainFrameOnly: true})

	cfg, err = setAll(`{}`, kv{"epoch", snap.StorageCacheEpoch})
	if err != nil {
		return nil, fmt.Errorf("build %s config: %w", StorageCache, err)
	}
	scripts = append(scripts, domain.Script{Name: StorageCache, Source: wrap(StorageCache, cfg), InjectAtStart: true})

	n := b.builds.Add(1)
	b.logger.Debug(map[string]any{
		"build":    n,
		"scripts":  len(scripts),
		"rulesets": len(ev.Rules),
	}, "Scripts built")

	return &domain.ScriptBundle{Scripts: scripts, Settings: snap}, nil
}

type kv struct {
	path  string
	value any
}

func setAll(doc string, pairs ...kv) (string, error) {
	var err error
	for _, p := range pairs {
		if doc, err = sjson.Set(doc, p.path, p.value); err != nil {
			return "", fmt.Errorf("set %q: %w", p.path, err)
		}
	}
	return doc, nil
}

func contentBlockerConfig(snap domain.SettingsSnapshot, ev domain.UpdateEvent, lists domain.ProtectionLists) (string, error) {
	doc, err := setAll(`{}`,
		kv{"debug", snap.InternalUserVerified},
		kv{"tempUnprotectedDomains", orEmpty(lists.TempUnprotected)},
		kv{"allowList", orEmpty(lists.AllowList)},
		kv{"userUnprotectedDomains", orEmpty(lists.UnprotectedSites)},
		kv{"trackerData", map[string]any{}},
	)
	if err != nil {
		return "", err
	}

	for _, name := range slices.Sorted(maps.Keys(ev.Rules)) {
		r := ev.Rules[name]
		if r == nil || r.EncodedTrackerData == "" {
			continue
		}
		key := escapePath(name)
		if doc, err = sjson.SetRaw(doc, "trackerData."+key, r.EncodedTrackerData); err != nil {
			return "", fmt.Errorf("embed tracker data %q: %w", name, err)
		}
		if doc, err = sjson.Set(doc, "etags."+key, r.ETag); err != nil {
			return "", fmt.Errorf("set etag %q: %w", name, err)
		}
	}
	return doc, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// escapePath escapes sjson path metacharacters in a single key.
func escapePath(key string) string {
	r := strings.NewReplacer(`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`, `|`, `\|`, `#`, `\#`, `@`, `\@`)
	return r.Replace(key)
}

func wrap(name, config string) string {
	return fmt.Sprintf("(function(){window.__shield=window.__shield||{};window.__shield[%q]=%s;})();", name, config)
}
