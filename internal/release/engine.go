// Package release orchestrates the release pipeline of one workspace: it
// loads packages and pending changesets, resolves a plan, applies it with
// rollback, writes changelogs and archives the released changesets.
package release

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/apply"
	"github.com/ariel-frischer/bumpkit/internal/backup"
	"github.com/ariel-frischer/bumpkit/internal/changelog"
	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/commits"
	"github.com/ariel-frischer/bumpkit/internal/config"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
	"github.com/ariel-frischer/bumpkit/internal/graph"
	"github.com/ariel-frischer/bumpkit/internal/metrics"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
	"github.com/ariel-frischer/bumpkit/internal/vcs"
	"github.com/ariel-frischer/bumpkit/internal/workspace"
)

// Observer is told when a pipeline stage starts and ends. The CLI drives a
// spinner from it.
type Observer interface {
	StageStarted(name string)
	StageFinished(name string, err error)
}

// Stage names reported to an Observer.
const (
	StageLoad      = "Loading workspace"
	StageResolve   = "Resolving plan"
	StageApply     = "Writing manifests"
	StageChangelog = "Writing changelogs"
	StageArchive   = "Archiving changesets"
)

// Engine runs release operations against one workspace root.
type Engine struct {
	root     string
	cfg      *config.Configuration
	resolve  resolver.Options
	analyzer *commits.Analyzer

	loader  *workspace.Loader
	store   *changeset.Store
	backups *backup.Manager
	applier *apply.Applier
	repo    vcs.Vcs

	writeChangelog fsutil.WriteFileFunc
	observer       Observer
	metrics        *metrics.Recorder
	logger         *slog.Logger
	now            func() time.Time
	user           string
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	repo           vcs.Vcs
	logger         *slog.Logger
	now            func() time.Time
	user           string
	writeManifest  fsutil.WriteFileFunc
	writeChangelog fsutil.WriteFileFunc
	observer       Observer
	metrics        *metrics.Recorder
}

// WithVcs sets the version control backend. Without one, drafting and
// changelog generation from history are unavailable and snapshot versions use
// "unknown" as their id.
func WithVcs(repo vcs.Vcs) Option {
	return func(o *engineOptions) { o.repo = repo }
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithUser sets the identity recorded as applied_by and as the author of
// drafted changesets.
func WithUser(user string) Option {
	return func(o *engineOptions) { o.user = user }
}

// WithManifestWriter replaces the manifest writer.
func WithManifestWriter(write fsutil.WriteFileFunc) Option {
	return func(o *engineOptions) { o.writeManifest = write }
}

// WithChangelogWriter replaces the changelog writer.
func WithChangelogWriter(write fsutil.WriteFileFunc) Option {
	return func(o *engineOptions) { o.writeChangelog = write }
}

// WithObserver reports stage progress.
func WithObserver(obs Observer) Option {
	return func(o *engineOptions) { o.observer = obs }
}

// WithMetrics records apply metrics into rec. When the configuration names a
// metrics file and no recorder is given, the engine creates one.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *engineOptions) { o.metrics = rec }
}

// New builds an engine for the workspace at root.
func New(root string, cfg *config.Configuration, opts ...Option) (*Engine, error) {
	o := engineOptions{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	resolveOpts, err := cfg.ResolverOptions()
	if err != nil {
		return nil, err
	}
	table, err := cfg.BumpTable()
	if err != nil {
		return nil, err
	}

	backups := backup.NewManager(abs,
		backup.WithKeepAfterSuccess(cfg.Backups.KeepAfterSuccess),
		backup.WithMaxBackups(cfg.Backups.MaxBackups),
		backup.WithLogger(o.logger),
		backup.WithClock(o.now),
	)
	rec := o.metrics
	if rec == nil && cfg.MetricsFile != "" {
		rec = metrics.New()
	}
	writeChangelog := o.writeChangelog
	if writeChangelog == nil {
		writeChangelog = fsutil.AtomicWriteFile
	}

	return &Engine{
		root:     abs,
		cfg:      cfg,
		resolve:  resolveOpts,
		analyzer: commits.NewAnalyzer(commits.WithBumpTable(table)),
		loader: workspace.NewLoader(
			workspace.WithLogger(o.logger),
			workspace.WithMaxConcurrentReads(cfg.MaxConcurrentReads),
		),
		store: changeset.NewStore(abs,
			changeset.WithLogger(o.logger),
			changeset.WithEnvironments(cfg.Environments),
			changeset.WithDefaultReleases(cfg.DefaultReleases),
			changeset.WithClock(o.now),
		),
		backups:        backups,
		applier:        apply.NewApplier(backups, apply.WithWriteFile(o.writeManifest), apply.WithLogger(o.logger)),
		repo:           o.repo,
		writeChangelog: writeChangelog,
		observer:       o.observer,
		metrics:        rec,
		logger:         o.logger,
		now:            o.now,
		user:           o.user,
	}, nil
}

// Root returns the absolute workspace root.
func (e *Engine) Root() string {
	return e.root
}

// Store returns the changeset store.
func (e *Engine) Store() *changeset.Store {
	return e.store
}

// Backups returns the backup manager.
func (e *Engine) Backups() *backup.Manager {
	return e.backups
}

// ChangelogOptions returns the configured entry rendering options.
func (e *Engine) ChangelogOptions() changelog.Options {
	return e.cfg.Changelog.Options()
}

// State is a loaded workspace together with its pending changesets.
type State struct {
	Workspace *workspace.Workspace
	Graph     *graph.Graph
	Pending   []*changeset.Changeset
}

// Changeset returns the pending changeset id.
func (s *State) Changeset(id string) (*changeset.Changeset, bool) {
	for _, c := range s.Pending {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// Load discovers packages, builds the dependency graph and lists pending
// changesets.
func (e *Engine) Load(ctx context.Context) (*State, error) {
	ws, err := e.loader.Load(ctx, e.root, e.cfg.Workspaces)
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(ws.Packages)
	if err != nil {
		return nil, err
	}
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("workspace loaded",
		slog.String("root", e.root),
		slog.Int("packages", len(ws.Packages)),
		slog.Int("pending", len(pending)),
	)
	return &State{Workspace: ws, Graph: g, Pending: pending}, nil
}

// Graph loads the workspace and returns its dependency graph.
func (e *Engine) Graph(ctx context.Context) (*graph.Graph, error) {
	ws, err := e.loader.Load(ctx, e.root, e.cfg.Workspaces)
	if err != nil {
		return nil, err
	}
	return graph.Build(ws.Packages)
}

// snapshotID returns the HEAD commit used in snapshot versions, or "" when
// it is unavailable.
func (e *Engine) snapshotID(ctx context.Context) string {
	if e.repo == nil {
		return ""
	}
	sha, err := e.repo.CurrentSHA(ctx)
	if err != nil {
		e.logger.Warn("snapshot id unavailable", slog.String("error", err.Error()))
		return ""
	}
	return sha
}

func (e *Engine) stage(name string, fn func() error) error {
	if e.observer != nil {
		e.observer.StageStarted(name)
	}
	err := fn()
	if e.observer != nil {
		e.observer.StageFinished(name, err)
	}
	return err
}
