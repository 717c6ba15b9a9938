// Package apply writes a resolved plan to the workspace manifests. Either
// every manifest reaches its new version or every manifest is restored.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/backup"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
	"github.com/ariel-frischer/bumpkit/internal/manifest"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
)

// Operation is the backup operation name used by Apply.
const Operation = "apply"

// ApplyError reports a failed apply and the outcome of the rollback.
type ApplyError struct {
	// Path is the manifest whose write failed.
	Path             string
	Cause            error
	BackupID         string
	RestoreSucceeded bool
	RestoreErrors    []error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "apply failed writing %s: %v", e.Path, e.Cause)
	if e.RestoreSucceeded {
		b.WriteString("; all manifests restored")
	} else {
		fmt.Fprintf(&b, "; rollback incomplete (%d errors), restore manually from backup %s", len(e.RestoreErrors), e.BackupID)
	}
	return b.String()
}

// Unwrap returns the original cause.
func (e *ApplyError) Unwrap() error {
	return e.Cause
}

// StalePlanError reports a manifest that changed after the plan was made.
type StalePlanError struct {
	Path     string
	Package  string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *StalePlanError) Error() string {
	return fmt.Sprintf("%s (%s) is at %s but the plan expected %s", e.Package, e.Path, e.Actual, e.Expected)
}

// Is reports the error as a conflict.
func (e *StalePlanError) Is(target error) bool {
	return target == clierrors.ErrConflict
}

// Result describes a successful apply.
type Result struct {
	BackupID string
	// BackupKept is false when the backup was deleted after success.
	BackupKept bool
	Written    []string
	Duration   time.Duration
}

// Applier writes plans.
type Applier struct {
	backups *backup.Manager
	write   fsutil.WriteFileFunc
	logger  *slog.Logger
}

// Option configures an Applier.
type Option func(*Applier)

// WithWriteFile replaces the manifest writer.
func WithWriteFile(write fsutil.WriteFileFunc) Option {
	return func(a *Applier) {
		if write != nil {
			a.write = write
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Applier) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewApplier returns an Applier that backs up through backups.
func NewApplier(backups *backup.Manager, opts ...Option) *Applier {
	a := &Applier{
		backups: backups,
		write:   fsutil.AtomicWriteFile,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type edit struct {
	update   resolver.PackageUpdate
	manifest *manifest.Manifest
}

// Apply backs up every planned manifest, then writes them in plan order. A
// failed write or a cancelled ctx restores everything already written and
// returns an *ApplyError.
func (a *Applier) Apply(ctx context.Context, plan *resolver.Plan) (*Result, error) {
	start := time.Now()
	if plan.Empty() {
		return &Result{}, nil
	}

	edits, err := prepare(plan)
	if err != nil {
		return nil, err
	}

	files := make([]string, len(edits))
	for i, e := range edits {
		files[i] = e.update.Path
	}
	bk, err := a.backups.Create(ctx, Operation, files)
	if err != nil {
		return nil, fmt.Errorf("creating backup: %w", err)
	}
	a.logger.Debug("backup taken", slog.String("id", bk.ID), slog.Int("files", len(files)))

	for i, e := range edits {
		err := ctx.Err()
		if err == nil {
			err = manifest.WriteWith(a.write, e.update.Path, e.manifest)
		}
		if err != nil {
			return nil, a.rollback(bk, files[:i+1], e.update.Path, err)
		}
		a.logger.Debug("manifest written",
			slog.String("package", e.update.Name),
			slog.String("version", e.update.NextVersion.String()))
	}

	if err := a.backups.MarkSuccess(bk.ID, true); err != nil {
		a.logger.Warn("recording backup outcome failed", slog.String("id", bk.ID), slog.String("error", err.Error()))
	}
	kept := a.backups.KeepAfterSuccess()
	if !kept {
		if err := a.backups.Delete(bk.ID); err != nil {
			a.logger.Warn("removing backup failed", slog.String("id", bk.ID), slog.String("error", err.Error()))
			kept = true
		}
	}

	a.logger.Info("plan applied", slog.Int("packages", len(edits)), slog.String("backup", bk.ID))
	return &Result{BackupID: bk.ID, BackupKept: kept, Written: files, Duration: time.Since(start)}, nil
}

// prepare reads every manifest and applies the edits in memory, so nothing
// touches disk when a manifest is unreadable or stale.
func prepare(plan *resolver.Plan) ([]edit, error) {
	edits := make([]edit, 0, len(plan.Updates))
	for _, u := range plan.Updates {
		m, err := manifest.Read(u.Path)
		if err != nil {
			return nil, err
		}
		current, err := m.Version()
		if err != nil {
			return nil, err
		}
		if !current.Equal(u.CurrentVersion) {
			return nil, &StalePlanError{Path: u.Path, Package: u.Name, Expected: u.CurrentVersion.String(), Actual: current.String()}
		}
		if err := m.SetVersion(u.NextVersion); err != nil {
			return nil, fmt.Errorf("setting version of %s: %w", u.Name, err)
		}
		for _, du := range u.DependencyUpdates {
			if err := m.UpdateDependency(du.Kind, du.Name, du.NewReq); err != nil {
				return nil, fmt.Errorf("updating %s in %s: %w", du.Name, u.Name, err)
			}
		}
		edits = append(edits, edit{update: u, manifest: m})
	}
	return edits, nil
}

// rollback restores touched files in reverse order and records the failure.
func (a *Applier) rollback(bk *backup.Backup, touched []string, failed string, cause error) error {
	a.logger.Warn("apply failed, restoring manifests",
		slog.String("path", failed), slog.String("error", cause.Error()), slog.String("backup", bk.ID))

	applyErr := &ApplyError{Path: failed, Cause: cause, BackupID: bk.ID}
	for i := len(touched) - 1; i >= 0; i-- {
		if err := a.backups.RestoreFile(bk, touched[i]); err != nil {
			applyErr.RestoreErrors = append(applyErr.RestoreErrors, err)
		}
	}
	applyErr.RestoreSucceeded = len(applyErr.RestoreErrors) == 0

	if err := a.backups.MarkSuccess(bk.ID, false); err != nil {
		applyErr.RestoreErrors = append(applyErr.RestoreErrors, err)
	}
	if !applyErr.RestoreSucceeded {
		a.logger.Error("rollback incomplete", slog.String("backup", bk.ID),
			slog.String("error", errors.Join(applyErr.RestoreErrors...).Error()))
	}
	return applyErr
}
