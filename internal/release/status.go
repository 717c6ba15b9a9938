package release

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/graph"
	"github.com/ariel-frischer/bumpkit/internal/resolver"
)

// PendingSummary describes one pending changeset.
type PendingSummary struct {
	ID        string    `json:"id" yaml:"id"`
	Branch    string    `json:"branch" yaml:"branch"`
	Author    string    `json:"author,omitempty" yaml:"author,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Releases  []string  `json:"releases" yaml:"releases"`
	Packages  []string  `json:"packages" yaml:"packages"`
}

// Summarize describes a changeset.
func Summarize(c *changeset.Changeset) PendingSummary {
	s := PendingSummary{
		ID:        c.ID(),
		Branch:    c.Branch,
		Author:    c.Author,
		CreatedAt: c.CreatedAt,
		Releases:  c.Releases,
		Packages:  make([]string, len(c.Packages)),
	}
	for i, p := range c.Packages {
		s.Packages[i] = p.Name
	}
	return s
}

// Status is what an apply would do right now.
type Status struct {
	Root     string           `json:"root" yaml:"root"`
	Packages int              `json:"packages" yaml:"packages"`
	Pending  []PendingSummary `json:"pending" yaml:"pending"`
	Plan     *resolver.Plan   `json:"plan" yaml:"plan"`
	Cycles   []graph.Cycle    `json:"cycles" yaml:"cycles"`
}

// dirtyChecker is implemented by backends that can report uncommitted
// changes.
type dirtyChecker interface {
	IsDirty(ctx context.Context) (bool, error)
}

// StatusOptions adjust the resolution shown by Status.
type StatusOptions struct {
	Snapshot bool
}

// Status resolves the pending changesets without touching the workspace.
func (e *Engine) Status(ctx context.Context, opts StatusOptions) (*Status, error) {
	state, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := e.plan(ctx, state, opts.Snapshot)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Root:     e.root,
		Packages: len(state.Workspace.Packages),
		Pending:  make([]PendingSummary, len(state.Pending)),
		Plan:     plan,
		Cycles:   state.Graph.DetectCycles(),
	}
	for i, c := range state.Pending {
		st.Pending[i] = Summarize(c)
	}
	if st.Cycles == nil {
		st.Cycles = []graph.Cycle{}
	}
	return st, nil
}

func (e *Engine) plan(ctx context.Context, state *State, snapshot bool) (*resolver.Plan, error) {
	opts := e.resolve
	if dc, ok := e.repo.(dirtyChecker); ok {
		dirty, err := dc.IsDirty(ctx)
		if err != nil {
			e.logger.Warn("worktree status unavailable", slog.String("error", err.Error()))
		}
		opts.Dirty = dirty
	}
	if snapshot {
		opts.Snapshot = true
		opts.SnapshotID = e.snapshotID(ctx)
	}
	return resolver.Resolve(state.Pending, state.Graph, opts)
}
