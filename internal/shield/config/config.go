package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	Dataset    DatasetConfig    `koanf:"dataset"`
	Protection ProtectionConfig `koanf:"protection"`

	// Rulesets lists the managed rulesets as name=selector pairs, where the
	// selector is "all" or "category:<label>".
	Rulesets []string `koanf:"rulesets" validate:"required,min=1,dive,ruleset_selector"`

	Compiler CompilerConfig `koanf:"compiler"`
	Cache    CacheConfig    `koanf:"cache"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// DatasetConfig locates tracker data on disk.
type DatasetConfig struct {
	// Bootstrap is the bundled dataset used at startup and as parse fallback.
	Bootstrap string `koanf:"bootstrap" validate:"required"`
	// WatchDir receives fetched datasets; empty disables watching.
	WatchDir string `koanf:"watch_dir"`
	// DB is the bbolt file holding the last good dataset; empty disables persistence.
	DB string `koanf:"db"`
	// MaxSize bounds accepted dataset files.
	MaxSize datasize.ByteSize `koanf:"max_size" validate:"gt=0"`
}

// ProtectionConfig locates the protection-list files.
type ProtectionConfig struct {
	// Dir holds temp-unprotected, allow-list and unprotected-sites files.
	Dir string `koanf:"dir" validate:"required"`
}

type CompilerConfig struct {
	MaxRules int `koanf:"max_rules" validate:"gte=1"`
}

type CacheConfig struct {
	// RulesSize bounds the content-addressed compiled-rules cache.
	RulesSize int `koanf:"rules_size" validate:"gte=1"`
	// LookupSize bounds the host lookup cache; 0 disables it.
	LookupSize int `koanf:"lookup_size" validate:"gte=0"`
	// BloomFPRate is the target false-positive rate of the domain filter.
	BloomFPRate float64 `koanf:"bloom_fp_rate" validate:"gt=0,lt=1"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint; empty disables it.
	Addr string `koanf:"addr" validate:"omitempty,host_port"`
}

// DEFAULT_APP_CONFIG defines the defaults applied before environment overrides.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:      "prod",
	LogLevel: "info",
	Dataset: DatasetConfig{
		Bootstrap: "/usr/share/rr-shield/tds.json",
		WatchDir:  "/var/lib/rr-shield/incoming/",
		DB:        "/var/lib/rr-shield/tds.db",
		MaxSize:   32 * datasize.MB,
	},
	Protection: ProtectionConfig{
		Dir: "/etc/rr-shield/protection.d/",
	},
	Rulesets: []string{"TrackerDataSet=all"},
	Compiler: CompilerConfig{MaxRules: 150000},
	Cache: CacheConfig{
		RulesSize:   16,
		LookupSize:  10000,
		BloomFPRate: 0.01,
	},
	Metrics: MetricsConfig{Addr: ""},
}

// sections are the nested koanf paths reachable from flat env names,
// e.g. SHIELD_DATASET_WATCH_DIR → dataset.watch_dir.
var sections = []string{"dataset", "protection", "compiler", "cache", "metrics"}

// envKey maps a prefix-stripped env name onto its koanf path.
func envKey(key string) string {
	key = strings.ToLower(key)
	for _, s := range sections {
		if rest, ok := strings.CutPrefix(key, s+"_"); ok {
			return s + "." + rest
		}
	}
	return key
}

// RulesetSpec is one parsed name=selector entry.
type RulesetSpec struct {
	Name     string
	Selector string
}

// ParseRulesetSpec splits a name=selector entry and checks the selector form.
func ParseRulesetSpec(s string) (RulesetSpec, error) {
	name, sel, ok := strings.Cut(strings.TrimSpace(s), "=")
	name, sel = strings.TrimSpace(name), strings.TrimSpace(sel)
	if !ok || name == "" || sel == "" {
		return RulesetSpec{}, fmt.Errorf("ruleset %q: want name=selector", s)
	}
	if sel != "all" {
		label, found := strings.CutPrefix(sel, "category:")
		if !found || strings.TrimSpace(label) == "" {
			return RulesetSpec{}, fmt.Errorf("ruleset %q: unsupported selector %q", name, sel)
		}
	}
	return RulesetSpec{Name: name, Selector: sel}, nil
}

// RulesetSpecs parses every configured ruleset, rejecting duplicate names.
func (c *AppConfig) RulesetSpecs() ([]RulesetSpec, error) {
	out := make([]RulesetSpec, 0, len(c.Rulesets))
	seen := make(map[string]struct{}, len(c.Rulesets))
	for _, raw := range c.Rulesets {
		spec, err := ParseRulesetSpec(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("ruleset %q configured twice", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		out = append(out, spec)
	}
	return out, nil
}

// validRulesetSelector is the validator form of ParseRulesetSpec.
func validRulesetSelector(fl validator.FieldLevel) bool {
	_, err := ParseRulesetSpec(fl.Field().String())
	return err == nil
}

// validHostPort accepts host:port with an optional host (":9100").
func validHostPort(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n > 0
}

// envLoader loads environment variables with the prefix "SHIELD_" and can be
// mocked in tests. Values containing spaces or commas become lists.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "SHIELD_",
		TransformFunc: func(key, value string) (string, any) {
			key = envKey(strings.TrimPrefix(key, "SHIELD_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			// single-element lists still need to unmarshal into []string
			if key == "rulesets" {
				return key, []string{value}
			}
			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom tags used by AppConfig.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ruleset_selector", validRulesetSelector); err != nil {
		return err
	}
	return v.RegisterValidation("host_port", validHostPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if _, err := cfg.RulesetSpecs(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
