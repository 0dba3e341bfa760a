package protection

import (
	"slices"
	"sync"

	"github.com/haukened/rr-shield/internal/shield/common/log"
	"github.com/haukened/rr-shield/internal/shield/domain"
)

// Repository holds the protection lists currently in effect.
type Repository struct {
	dir    string
	logger log.Logger

	mu        sync.RWMutex
	lists     domain.ProtectionLists
	userSites []string // nil: use the file-backed unprotected sites
}

// NewRepository returns a Repository reading from dir. Call Reload to load.
func NewRepository(dir string, logger log.Logger) *Repository {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Repository{dir: dir, logger: logger}
}

// Lists returns the lists in effect.
func (r *Repository) Lists() domain.ProtectionLists {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.lists
	if r.userSites != nil {
		out.UnprotectedSites = slices.Clone(r.userSites)
	}
	return out
}

// Reload re-reads the directory and reports whether anything that feeds a
// rule identifier changed. On error the previous lists stay in effect.
func (r *Repository) Reload() (bool, error) {
	next, err := LoadDirectory(r.dir)
	if err != nil {
		r.logger.Warn(map[string]any{"dir": r.dir, "error": err}, "Protection lists not reloaded")
		return false, err
	}

	r.mu.Lock()
	prev := r.lists
	prevUser := r.effectiveUserHash()
	r.lists = next
	nextUser := r.effectiveUserHash()
	r.mu.Unlock()

	changed := prev.TempListEtag != next.TempListEtag ||
		prev.AllowListEtag != next.AllowListEtag ||
		prevUser != nextUser
	r.logger.Debug(map[string]any{
		"dir":              r.dir,
		"temp_unprotected": len(next.TempUnprotected),
		"allow_list":       len(next.AllowList),
		"unprotected":      len(next.UnprotectedSites),
		"changed":          changed,
	}, "Protection lists loaded")
	return changed, nil
}

// SetUserSites overrides the user's unprotected sites. It reports whether the
// effective list changed.
func (r *Repository) SetUserSites(sites []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.effectiveUserHash()
	r.userSites = dedupe(toSites(anySlice(sites)))
	if r.userSites == nil {
		r.userSites = []string{}
	}
	return before != r.effectiveUserHash()
}

// effectiveUserHash hashes the user sites Lists would return. Callers hold mu.
func (r *Repository) effectiveUserHash() string {
	l := r.lists
	if r.userSites != nil {
		l.UnprotectedSites = r.userSites
	}
	return l.UnprotectedSitesHash()
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
