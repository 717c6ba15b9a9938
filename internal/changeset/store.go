package changeset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
)

const (
	// DirName is the pending changeset directory under the workspace root.
	DirName = ".changesets"
	// ArchiveDirName is the archive directory under DirName.
	ArchiveDirName = "archive"
	// LockFileName is the advisory lock file under DirName.
	LockFileName = ".lock"
)

// NotFoundError reports a changeset id with no pending file.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("changeset %q not found", e.ID)
}

// Is reports the error as a failed lookup.
func (e *NotFoundError) Is(target error) bool {
	return target == clierrors.ErrNotFound
}

// CorruptionError reports a changeset file that cannot be trusted.
type CorruptionError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted changeset %s: %s", e.Path, e.Reason)
}

// Is reports the error as corruption.
func (e *CorruptionError) Is(target error) bool {
	return target == clierrors.ErrCorruption
}

// ExistsError reports an id collision on create.
type ExistsError struct {
	ID   string
	Path string
}

// Error implements the error interface.
func (e *ExistsError) Error() string {
	return fmt.Sprintf("changeset %q already exists at %s", e.ID, e.Path)
}

// Is reports the error as a conflict.
func (e *ExistsError) Is(target error) bool {
	return target == clierrors.ErrConflict
}

// Store manages the .changesets directory of one workspace.
type Store struct {
	dir          string
	environments []string
	defaults     []string
	logger       *slog.Logger
	now          func() time.Time

	mu    sync.Mutex
	lock  *fsutil.FileLock
	holds int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEnvironments restricts releases to the given environment names.
func WithEnvironments(envs []string) StoreOption {
	return func(s *Store) {
		s.environments = envs
	}
}

// WithDefaultReleases sets the releases used when a new changeset has none.
func WithDefaultReleases(envs []string) StoreOption {
	return func(s *Store) {
		if len(envs) > 0 {
			s.defaults = envs
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a store for the workspace at root.
func NewStore(root string, opts ...StoreOption) *Store {
	s := &Store{
		dir:      filepath.Join(root, DirName),
		defaults: []string{"dev"},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the pending changeset directory.
func (s *Store) Dir() string {
	return s.dir
}

// ArchiveDir returns the archive root.
func (s *Store) ArchiveDir() string {
	return filepath.Join(s.dir, ArchiveDirName)
}

// PathFor returns the pending file path of id.
func (s *Store) PathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Lock takes the workspace advisory lock, waiting until ctx is done. The lock
// is reentrant within the process: nested calls share the held lock and the
// file is released when the outermost unlock runs.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holds == 0 {
		lock, err := fsutil.Lock(ctx, filepath.Join(s.dir, LockFileName))
		if err != nil {
			return nil, fmt.Errorf("locking %s: %w", s.dir, err)
		}
		s.lock = lock
	}
	s.holds++

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() { err = s.release() })
		return err
	}, nil
}

func (s *Store) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds--
	if s.holds > 0 {
		return nil
	}
	err := s.lock.Unlock()
	s.lock = nil
	return err
}

// Create fills in creation defaults, validates and writes a new pending
// changeset. It fails with ExistsError if the id is taken.
func (s *Store) Create(ctx context.Context, c *Changeset) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Second)
	if len(c.Releases) == 0 {
		c.Releases = append([]string(nil), s.defaults...)
	}
	if err := Validate(c, s.environments); err != nil {
		return err
	}

	unlock, err := s.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	path := s.PathFor(c.ID())
	if fsutil.Exists(path) {
		return &ExistsError{ID: c.ID(), Path: path}
	}
	if err := s.write(path, c); err != nil {
		return err
	}
	s.logger.Info("changeset created", slog.String("id", c.ID()), slog.Int("packages", len(c.Packages)))
	return nil
}

// ListPending returns every readable pending changeset ordered by creation
// time. Files that fail to parse are logged and skipped.
func (s *Store) ListPending(ctx context.Context) ([]*Changeset, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w: %w", s.dir, clierrors.ErrIO, err)
	}

	var out []*Changeset
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		c, err := s.read(path)
		if err != nil {
			s.logger.Warn("skipping unreadable changeset", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, c)
	}
	sortByCreation(out)
	return out, nil
}

// Load reads one pending changeset and fails fast if it is malformed.
func (s *Store) Load(ctx context.Context, id string) (*Changeset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id = strings.TrimSuffix(id, ".json")
	path := s.PathFor(id)
	if !fsutil.Exists(path) {
		return nil, &NotFoundError{ID: id}
	}
	return s.read(path)
}

// ListArchived returns archived changesets ordered by creation time.
func (s *Store) ListArchived(ctx context.Context) ([]*Changeset, error) {
	var out []*Changeset
	err := filepath.WalkDir(s.ArchiveDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		c, readErr := s.read(path)
		if readErr != nil {
			s.logger.Warn("skipping unreadable archived changeset", slog.String("path", path), slog.String("error", readErr.Error()))
			return nil
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	sortByCreation(out)
	return out, nil
}

// Archive stamps info onto the pending changeset id and moves it to
// archive/{YYYY}/{MM}/ keyed by the apply time.
func (s *Store) Archive(ctx context.Context, id string, info ReleaseInfo) error {
	unlock, err := s.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	c, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	info.AppliedAt = info.AppliedAt.UTC().Truncate(time.Second)
	c.ReleaseInfo = &info
	if err := Validate(c, s.environments); err != nil {
		return err
	}

	dest := s.ArchivePath(c)
	if err := s.write(dest, c); err != nil {
		return err
	}
	if err := os.Remove(s.PathFor(c.ID())); err != nil {
		return fmt.Errorf("removing pending changeset %s: %w: %w", c.ID(), clierrors.ErrIO, err)
	}
	s.logger.Info("changeset archived", slog.String("id", c.ID()), slog.String("path", dest))
	return nil
}

// ArchivePath returns where an archived changeset is stored.
func (s *Store) ArchivePath(c *Changeset) string {
	at := c.CreatedAt
	if c.ReleaseInfo != nil {
		at = c.ReleaseInfo.AppliedAt
	}
	at = at.UTC()
	return filepath.Join(s.ArchiveDir(), fmt.Sprintf("%04d", at.Year()), fmt.Sprintf("%02d", int(at.Month())), c.FileName())
}

// Delete removes a pending changeset.
func (s *Store) Delete(ctx context.Context, id string) error {
	unlock, err := s.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	id = strings.TrimSuffix(id, ".json")
	path := s.PathFor(id)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &NotFoundError{ID: id}
		}
		return fmt.Errorf("removing %s: %w: %w", path, clierrors.ErrIO, err)
	}
	return nil
}

func (s *Store) read(path string) (*Changeset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w: %w", path, clierrors.ErrIO, err)
	}
	c, err := Unmarshal(data)
	if err != nil {
		return nil, &CorruptionError{Path: path, Reason: err.Error()}
	}
	if want := strings.TrimSuffix(filepath.Base(path), ".json"); c.ID() != want {
		return nil, &CorruptionError{Path: path, Reason: fmt.Sprintf("file name does not match changeset id %s", c.ID())}
	}
	return c, nil
}

func (s *Store) write(path string, c *Changeset) error {
	data, err := Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding changeset %s: %w", c.ID(), err)
	}
	if err := fsutil.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing changeset %s: %w: %w", path, clierrors.ErrIO, err)
	}
	return nil
}

func sortByCreation(list []*Changeset) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID() < list[j].ID()
	})
}
