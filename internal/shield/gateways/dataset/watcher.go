package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/fsnotify/fsnotify"

	"github.com/haukened/rr-shield/internal/shield/common/log"
	"github.com/haukened/rr-shield/internal/shield/common/queue"
)

// DefaultDebounce is how long a path must stay quiet before it is reported.
const DefaultDebounce = 250 * time.Millisecond

var ErrWatcherClosed = errors.New("watcher closed")

// WatcherOptions configures a Watcher. Exts lists the file extensions that
// are reported, including the dot; empty reports every file.
type WatcherOptions struct {
	Dir      string
	Exts     []string
	Debounce time.Duration
	Logger   log.Logger
}

// Watcher reports files in a directory that were created, written, removed
// or renamed. Bursts of events for one path are collapsed.
type Watcher struct {
	dir      string
	exts     []string
	debounce time.Duration
	logger   log.Logger

	fsw     *fsnotify.Watcher
	pending *queue.Pump[string]

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewWatcher creates opts.Dir if needed and starts watching it.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, errors.New("watch directory must not be empty")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watch directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(opts.Dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", opts.Dir, err)
	}
	return &Watcher{
		dir:      opts.Dir,
		exts:     opts.Exts,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		fsw:      fsw,
		pending:  queue.NewPump[string](),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run calls fn with each settled path until ctx is done or the watcher is
// closed. fn runs on the Run goroutine.
func (w *Watcher) Run(ctx context.Context, fn func(path string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrWatcherClosed
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			w.logger.Warn(map[string]any{"dir": w.dir, "error": err}, "Watch error")
		case path, ok := <-w.pending.Out():
			if !ok {
				return ErrWatcherClosed
			}
			fn(path)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	if !w.wanted(ev.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[ev.Name]; ok {
		t.Reset(w.debounce)
		return
	}
	path := ev.Name
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.pending.Push(path)
	})
}

func (w *Watcher) wanted(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if len(w.exts) == 0 {
		return true
	}
	return slices.Contains(w.exts, strings.ToLower(filepath.Ext(base)))
}

// Close stops the watcher. Pending paths are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = nil
	w.mu.Unlock()

	w.pending.Close()
	return w.fsw.Close()
}

// Latest returns the most recently modified file in dir with extension ext,
// or "" when there is none.
func Latest(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = filepath.Join(dir, e.Name()), info.ModTime()
		}
	}
	return best, nil
}

// Dataset is a dataset read from the drop directory.
type Dataset struct {
	Path string
	Tag  string
	Raw  []byte
}

// DatasetHandler adapts fn to Watcher.Run for a dataset drop directory.
// A changed "<name>.json.etag" re-reads "<name>.json"; removed or unreadable
// files are logged and skipped.
func DatasetHandler(limit datasize.ByteSize, logger log.Logger, fn func(Dataset)) func(path string) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return func(path string) {
		path = strings.TrimSuffix(path, EtagSuffix)
		tag, raw, err := ReadFile(path, limit)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Debug(map[string]any{"path": path}, "Dataset file gone")
				return
			}
			logger.Warn(map[string]any{"path": path, "error": err}, "Dataset file skipped")
			return
		}
		fn(Dataset{Path: path, Tag: tag, Raw: raw})
	}
}
