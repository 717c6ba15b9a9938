// Package watch reports changes to pending changesets and workspace
// manifests so status output can be refreshed.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
)

// DefaultDebounce is the quiet period before a batch is emitted.
const DefaultDebounce = 100 * time.Millisecond

// Batch is a set of paths that changed within one debounce window.
type Batch struct {
	Paths []string
}

// Watcher monitors the changeset directory and the directories holding
// workspace manifests.
type Watcher struct {
	Root    string
	Changes <-chan Batch

	changes   chan Batch
	done      chan struct{}
	stopOnce  sync.Once
	watcher   *fsnotify.Watcher
	dirs      []string
	manifests map[string]bool
	debounce  time.Duration
	logger    *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger used for watch errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a watcher for the workspace at root. manifests are the
// package.json paths to track.
func New(root string, manifests []string, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	ch := make(chan Batch, 4)
	w := &Watcher{
		Root:      root,
		Changes:   ch,
		changes:   ch,
		done:      make(chan struct{}),
		watcher:   fw,
		manifests: make(map[string]bool, len(manifests)+1),
		debounce:  DefaultDebounce,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	seen := map[string]bool{}
	addDir := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	// the root is watched so a freshly created changeset directory is noticed
	addDir(filepath.Clean(root))
	addDir(filepath.Join(root, changeset.DirName))
	w.manifests[filepath.Join(root, manifest.FileName)] = true
	for _, m := range manifests {
		m = filepath.Clean(m)
		w.manifests[m] = true
		addDir(filepath.Dir(m))
	}
	return w, nil
}

// Start begins watching. Directories that do not exist yet are skipped.
func (w *Watcher) Start() error {
	for _, dir := range w.dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and the Changes channel. It is safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.watcher.Close()
		<-w.done
		close(w.changes)
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	pending := make(map[string]struct{})
	var last time.Time
	ticker := time.NewTicker(max(w.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.isChangesetDir(event.Name) && event.Has(fsnotify.Create) {
				if err := w.watcher.Add(event.Name); err != nil {
					w.logger.Warn("watching changeset directory", slog.String("path", event.Name), slog.Any("error", err))
				}
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = struct{}{}
				last = time.Now()
			}

		case <-ticker.C:
			if len(pending) == 0 || time.Since(last) < w.debounce {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			select {
			case w.changes <- Batch{Paths: paths}:
			default:
				w.logger.Debug("dropping change batch, consumer is behind", slog.Int("paths", len(paths)))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) isChangesetDir(name string) bool {
	return filepath.Clean(name) == filepath.Join(w.Root, changeset.DirName)
}

// relevant reports whether name is a tracked manifest or a changeset file.
// Temporary files written during atomic replacement are ignored.
func (w *Watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	if w.manifests[name] {
		return true
	}
	base := filepath.Base(name)
	return filepath.Dir(name) == filepath.Join(w.Root, changeset.DirName) &&
		strings.HasSuffix(base, ".json") &&
		!strings.HasPrefix(base, ".")
}
