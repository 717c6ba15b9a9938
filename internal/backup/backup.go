// Package backup keeps mirrored copies of manifests so a failed apply can be
// rolled back, and rotates old copies.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
)

const (
	// DirName is the backup root under the workspace.
	DirName = ".pkg-backups"
	// MetadataFile lists every backup, newest first.
	MetadataFile = "metadata.json"
	// StampLayout prefixes backup ids.
	StampLayout = "2006-01-02T15-04-05"
	// DefaultMaxBackups bounds how many backups are kept.
	DefaultMaxBackups = 10
)

// Entry is one record of metadata.json.
type Entry struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Operation string    `json:"operation" yaml:"operation"`
	Files     []string  `json:"files" yaml:"files"`
	Success   bool      `json:"success" yaml:"success"`
}

// NotFoundError reports an unknown backup id.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("backup %q not found", e.ID)
}

// Is reports the error as a failed lookup.
func (e *NotFoundError) Is(target error) bool {
	return target == clierrors.ErrNotFound
}

// CorruptionError reports unusable backup metadata or contents.
type CorruptionError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted backup %s: %s", e.Path, e.Reason)
}

// Is reports the error as corruption.
func (e *CorruptionError) Is(target error) bool {
	return target == clierrors.ErrCorruption
}

// Manager owns the backup directory of one workspace.
type Manager struct {
	root             string
	dir              string
	keepAfterSuccess bool
	maxBackups       int
	logger           *slog.Logger
	now              func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithKeepAfterSuccess keeps successful backups instead of pruning them.
func WithKeepAfterSuccess(keep bool) Option {
	return func(m *Manager) {
		m.keepAfterSuccess = keep
	}
}

// WithMaxBackups bounds the number of retained backups.
func WithMaxBackups(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxBackups = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a manager for the workspace at root.
func NewManager(root string, opts ...Option) *Manager {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	m := &Manager{
		root:       root,
		dir:        filepath.Join(root, DirName),
		maxBackups: DefaultMaxBackups,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backup root.
func (m *Manager) Dir() string {
	return m.dir
}

// KeepAfterSuccess reports whether successful backups are retained.
func (m *Manager) KeepAfterSuccess() bool {
	return m.keepAfterSuccess
}

// Backup is a created backup.
type Backup struct {
	Entry
	Dir  string
	root string
}

// PathFor returns where the copy of file lives.
func (b *Backup) PathFor(file string) (string, error) {
	rel, err := filepath.Rel(b.root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the workspace %s", file, b.root)
	}
	return filepath.Join(b.Dir, rel), nil
}

// Create copies files into a new backup directory named after the time and
// operation, records it in the metadata as unsuccessful, and rotates.
func (m *Manager) Create(ctx context.Context, operation string, files []string) (*Backup, error) {
	createdAt := m.now().UTC().Truncate(time.Second)
	id := createdAt.Format(StampLayout) + "-" + operation
	if fsutil.Exists(filepath.Join(m.dir, id)) {
		id += "-" + uuid.NewString()[:8]
	}

	abs := make([]string, 0, len(files))
	for _, f := range files {
		a, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", f, err)
		}
		abs = append(abs, a)
	}

	b := &Backup{
		Entry: Entry{ID: id, CreatedAt: createdAt, Operation: operation, Files: abs},
		Dir:   filepath.Join(m.dir, id),
		root:  m.root,
	}
	for _, f := range abs {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(b.Dir)
			return nil, err
		}
		dst, err := b.PathFor(f)
		if err != nil {
			_ = os.RemoveAll(b.Dir)
			return nil, err
		}
		if err := fsutil.CopyFile(f, dst); err != nil {
			_ = os.RemoveAll(b.Dir)
			return nil, fmt.Errorf("backing up %s: %w: %w", f, clierrors.ErrIO, err)
		}
	}

	entries, err := m.List()
	if err != nil {
		return nil, err
	}
	entries = append([]Entry{b.Entry}, entries...)
	entries = m.rotate(entries)
	if err := m.save(entries); err != nil {
		return nil, err
	}

	m.logger.Debug("backup created", slog.String("id", id), slog.Int("files", len(abs)))
	return b, nil
}

// rotate drops successful backups unless they are kept, then the oldest
// entries beyond the limit. Dropped directories are removed.
func (m *Manager) rotate(entries []Entry) []Entry {
	var kept []Entry
	for i, e := range entries {
		if i > 0 && e.Success && !m.keepAfterSuccess {
			m.removeDir(e.ID)
			continue
		}
		kept = append(kept, e)
	}
	for len(kept) > m.maxBackups {
		oldest := kept[len(kept)-1]
		m.removeDir(oldest.ID)
		kept = kept[:len(kept)-1]
	}
	return kept
}

func (m *Manager) removeDir(id string) {
	if err := os.RemoveAll(filepath.Join(m.dir, id)); err != nil {
		m.logger.Warn("removing backup failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}

// List returns the metadata entries, newest first.
func (m *Manager) List() ([]Entry, error) {
	path := filepath.Join(m.dir, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w: %w", path, clierrors.ErrIO, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &CorruptionError{Path: path, Reason: err.Error()}
	}
	for _, e := range entries {
		if e.ID == "" || strings.ContainsAny(e.ID, `/\`) {
			return nil, &CorruptionError{Path: path, Reason: fmt.Sprintf("invalid backup id %q", e.ID)}
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// Get returns the backup with id.
func (m *Manager) Get(id string) (*Backup, error) {
	entries, err := m.List()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return &Backup{Entry: e, Dir: filepath.Join(m.dir, id), root: m.root}, nil
		}
	}
	return nil, &NotFoundError{ID: id}
}

// MarkSuccess records the outcome of the operation a backup guarded.
func (m *Manager) MarkSuccess(id string, success bool) error {
	entries, err := m.List()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			entries[i].Success = success
			return m.save(entries)
		}
	}
	return &NotFoundError{ID: id}
}

// RestoreFile copies one file back from the backup.
func (m *Manager) RestoreFile(b *Backup, file string) error {
	src, err := b.PathFor(file)
	if err != nil {
		return err
	}
	if !fsutil.Exists(src) {
		return &CorruptionError{Path: src, Reason: "backup copy is missing"}
	}
	if err := fsutil.CopyFile(src, file); err != nil {
		return fmt.Errorf("restoring %s: %w: %w", file, clierrors.ErrIO, err)
	}
	return nil
}

// Restore copies every file of backup id back in reverse order and returns
// the restored paths. It keeps going after a failure and joins the errors.
func (m *Manager) Restore(ctx context.Context, id string) ([]string, error) {
	b, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	var restored []string
	var errs []error
	for i := len(b.Files) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		if err := m.RestoreFile(b, b.Files[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		restored = append(restored, b.Files[i])
	}
	m.logger.Info("backup restored", slog.String("id", id), slog.Int("files", len(restored)))
	return restored, errors.Join(errs...)
}

// Delete removes a backup and its metadata entry.
func (m *Manager) Delete(id string) error {
	entries, err := m.List()
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return &NotFoundError{ID: id}
	}
	if err := os.RemoveAll(filepath.Join(m.dir, id)); err != nil {
		return fmt.Errorf("removing backup %s: %w: %w", id, clierrors.ErrIO, err)
	}
	return m.save(kept)
}

func (m *Manager) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encoding backup metadata: %w", err)
	}
	path := filepath.Join(m.dir, MetadataFile)
	if err := fsutil.AtomicWriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w: %w", path, clierrors.ErrIO, err)
	}
	return nil
}
