// Package protection loads the site lists that switch tracker protection off:
// the remotely configured temporary-unprotected list and allow-list, and the
// user's own unprotected sites. Lists live in YAML, JSON or TOML files.
//
// File layout:
//
//	list: temp_unprotected   # or allow_list, unprotected_sites
//	etag: "W/abc"            # optional version tag of the remote list
//	sites:
//	  - example.com
//
// A remote list file without an etag is tagged by the sha256 of its sorted
// sites, so editing it still changes the rule identifier.
package protection

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/rr-shield/internal/shield/common/utils"
	"github.com/haukened/rr-shield/internal/shield/domain"
)

// List kinds accepted in the "list" key.
const (
	ListTempUnprotected  = "temp_unprotected"
	ListAllowList        = "allow_list"
	ListUnprotectedSites = "unprotected_sites"
)

// ErrUnknownList is returned for files whose "list" key names no known list.
var ErrUnknownList = errors.New("unknown protection list")

// listFile is one parsed file.
type listFile struct {
	kind  string
	etag  string
	sites []string
}

// LoadDirectory walks dir and merges every supported list file into one
// ProtectionLists value. A missing directory yields empty lists. When several
// files feed the same remote list their etags are joined in path order.
func LoadDirectory(dir string) (domain.ProtectionLists, error) {
	var (
		out                   domain.ProtectionLists
		tempEtags, allowEtags []string
	)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		lf, ok, err := loadListFile(path)
		if err != nil {
			return fmt.Errorf("error parsing protection file %s: %w", path, err)
		}
		if !ok {
			return nil
		}
		switch lf.kind {
		case ListTempUnprotected:
			out.TempUnprotected = append(out.TempUnprotected, lf.sites...)
			tempEtags = appendNonEmpty(tempEtags, lf.etag)
		case ListAllowList:
			out.AllowList = append(out.AllowList, lf.sites...)
			allowEtags = appendNonEmpty(allowEtags, lf.etag)
		case ListUnprotectedSites:
			out.UnprotectedSites = append(out.UnprotectedSites, lf.sites...)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ProtectionLists{}, nil
	}
	if err != nil {
		return domain.ProtectionLists{}, err
	}

	out.TempListEtag = strings.Join(tempEtags, ",")
	out.AllowListEtag = strings.Join(allowEtags, ",")
	out.TempUnprotected = dedupe(out.TempUnprotected)
	out.AllowList = dedupe(out.AllowList)
	out.UnprotectedSites = dedupe(out.UnprotectedSites)
	return out, nil
}

// loadListFile parses a single file. ok is false for unsupported extensions.
func loadListFile(path string) (listFile, bool, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return listFile{}, false, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return listFile{}, false, fmt.Errorf("failed to load protection file %s: %w", path, err)
	}

	kind := strings.ToLower(strings.TrimSpace(k.String("list")))
	switch kind {
	case ListTempUnprotected, ListAllowList, ListUnprotectedSites:
	case "":
		return listFile{}, false, fmt.Errorf("protection file %s missing 'list'", path)
	default:
		return listFile{}, false, fmt.Errorf("%w: %q", ErrUnknownList, kind)
	}

	lf := listFile{
		kind:  kind,
		etag:  strings.TrimSpace(k.String("etag")),
		sites: toSites(k.Get("sites")),
	}
	if lf.etag == "" && kind != ListUnprotectedSites {
		lf.etag = contentTag(lf.sites)
	}
	return lf, true, nil
}

// contentTag derives a version tag from a list's sites. It is "" for an
// empty list.
func contentTag(sites []string) string {
	sites = dedupe(sites)
	if len(sites) == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join(sites, "\n")))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// toSites converts a raw koanf value (string or []any of strings) into
// canonical host names, skipping empty or non-string elements.
func toSites(val any) []string {
	switch v := val.(type) {
	case string:
		if s := utils.CanonicalHost(v); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				continue
			}
			if s = utils.CanonicalHost(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func appendNonEmpty(dst []string, s string) []string {
	if s == "" {
		return dst
	}
	return append(dst, s)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
