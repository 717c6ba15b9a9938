package commits

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ariel-frischer/bumpkit/internal/semver"
	"github.com/ariel-frischer/bumpkit/internal/vcs"
)

// BumpTable maps commit types to the bump they suggest.
type BumpTable map[string]semver.Bump

// DefaultBumpTable returns feat=minor, fix=patch, perf=patch. Every other type
// suggests no bump.
func DefaultBumpTable() BumpTable {
	return BumpTable{
		"feat":     semver.BumpMinor,
		"fix":      semver.BumpPatch,
		"perf":     semver.BumpPatch,
		"docs":     semver.BumpNone,
		"style":    semver.BumpNone,
		"refactor": semver.BumpNone,
		"test":     semver.BumpNone,
		"chore":    semver.BumpNone,
		"build":    semver.BumpNone,
		"ci":       semver.BumpNone,
	}
}

// ParseBumpTable builds a table from configuration, layered over the default.
// Snapshot is rejected because it is never inferred from history.
func ParseBumpTable(raw map[string]string) (BumpTable, error) {
	table := DefaultBumpTable()
	for typ, value := range raw {
		b, err := semver.ParseBump(value)
		if err != nil {
			return nil, fmt.Errorf("commit type %q: %w", typ, err)
		}
		if b == semver.BumpSnapshot {
			return nil, fmt.Errorf("commit type %q: snapshot bumps cannot be inferred from commits", typ)
		}
		table[strings.ToLower(typ)] = b
	}
	return table, nil
}

// BumpFor returns the bump a parsed commit suggests. Breaking commits always
// suggest a major bump.
func (t BumpTable) BumpFor(c ConventionalCommit) semver.Bump {
	if c.Breaking {
		return semver.BumpMajor
	}
	return t[c.Type]
}

// Change is a commit together with its parsed message.
type Change struct {
	vcs.Commit
	ConventionalCommit
	// Conventional is false when the message did not follow the grammar.
	Conventional bool        `json:"conventional" yaml:"conventional"`
	Bump         semver.Bump `json:"bump" yaml:"bump"`
}

// Analyzer parses commits and suggests bumps.
type Analyzer struct {
	table BumpTable
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithBumpTable replaces the default bump table.
func WithBumpTable(table BumpTable) AnalyzerOption {
	return func(a *Analyzer) {
		if table != nil {
			a.table = table
		}
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{table: DefaultBumpTable()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze parses every commit. Messages outside the grammar become type
// "other" with the subject line as description and suggest no bump.
func (a *Analyzer) Analyze(list []vcs.Commit) []Change {
	out := make([]Change, 0, len(list))
	for _, c := range list {
		out = append(out, a.AnalyzeOne(c))
	}
	return out
}

// AnalyzeOne parses a single commit.
func (a *Analyzer) AnalyzeOne(c vcs.Commit) Change {
	parsed, ok := Parse(c.Message)
	if !ok {
		subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
		parsed = ConventionalCommit{Type: TypeOther, Description: strings.TrimSpace(subject)}
	}
	return Change{Commit: c, ConventionalCommit: parsed, Conventional: ok, Bump: a.table.BumpFor(parsed)}
}

// SuggestBump returns the largest bump suggested by changes.
func SuggestBump(changes []Change) semver.Bump {
	b := semver.BumpNone
	for _, c := range changes {
		b = b.Combine(c.Bump)
	}
	return b
}

// DefaultFilterConcurrency bounds concurrent FilesChanged queries.
const DefaultFilterConcurrency = 8

// FilterByPaths keeps commits whose changed files fall under any of the
// slash-separated path prefixes. Order is preserved.
func FilterByPaths(ctx context.Context, repo vcs.Vcs, list []vcs.Commit, paths []string) ([]vcs.Commit, error) {
	files, err := ChangedFiles(ctx, repo, list)
	if err != nil {
		return nil, err
	}
	var out []vcs.Commit
	for i, c := range list {
		if anyUnder(files[i], paths) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ChangedFiles queries the files touched by each commit, in parallel.
// The result is indexed like list.
func ChangedFiles(ctx context.Context, repo vcs.Vcs, list []vcs.Commit) ([][]string, error) {
	files := make([][]string, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultFilterConcurrency)
	for i, c := range list {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			changed, err := repo.FilesChanged(gctx, c.Hash)
			if err != nil {
				return fmt.Errorf("files changed in %s: %w", c.ShortHash, err)
			}
			files[i] = changed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// anyUnder reports whether any file lies under any prefix. An empty prefix or
// "." matches everything.
func anyUnder(files, prefixes []string) bool {
	for _, p := range prefixes {
		p = strings.TrimSuffix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "/")
		for _, f := range files {
			if p == "." || p == "" || f == p || strings.HasPrefix(f, p+"/") {
				return true
			}
		}
	}
	return false
}

// ByPackage groups changes by the package directory their files touch.
// dirs maps package name to its slash-separated directory relative to the
// repository root. A commit touching several packages is listed under each.
func ByPackage(changes []Change, files [][]string, dirs map[string]string) map[string][]Change {
	names := make([]string, 0, len(dirs))
	for name := range dirs {
		names = append(names, name)
	}
	// deepest directory first so nested packages win
	sort.Slice(names, func(i, j int) bool {
		if len(dirs[names[i]]) != len(dirs[names[j]]) {
			return len(dirs[names[i]]) > len(dirs[names[j]])
		}
		return names[i] < names[j]
	})

	out := make(map[string][]Change)
	for i, c := range changes {
		touched := make(map[string]bool)
		for _, f := range files[i] {
			for _, name := range names {
				if anyUnder([]string{f}, []string{dirs[name]}) {
					touched[name] = true
					break
				}
			}
		}
		for _, name := range names {
			if touched[name] {
				out[name] = append(out[name], c)
			}
		}
	}
	return out
}
