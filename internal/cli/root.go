// Package cli implements the bumpkit command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/apply"
	"github.com/ariel-frischer/bumpkit/internal/config"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/git"
	"github.com/ariel-frischer/bumpkit/internal/release"
)

// Command groups shown in help output.
const (
	GroupRelease    = "release"
	GroupChangesets = "changesets"
	GroupInspect    = "inspect"
	GroupSetup      = "setup"
)

var (
	rootFlag    string
	configFlag  string
	verboseFlag bool
	noColorFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "bumpkit",
	Short: "Version and release engine for package.json monorepos",
	Long: `bumpkit turns pending changesets into coordinated version bumps across a
package.json workspace.

It resolves which packages change and by how much, propagates bumps to
dependents, rewrites every affected manifest atomically with rollback, and
writes Keep-a-Changelog entries.`,
	Example: `  # Record an intent to release
  bumpkit changeset add --package @acme/api:minor --message "add search endpoint"

  # See what a release would do
  bumpkit status

  # Apply pending changesets
  bumpkit apply`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColorFlag {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupRelease, Title: "Release Commands:"},
		&cobra.Group{ID: GroupChangesets, Title: "Changeset Commands:"},
		&cobra.Group{ID: GroupInspect, Title: "Inspection Commands:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup Commands:"},
	)

	rootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "C", ".", "Workspace root directory")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Project config file (default: <root>/.bumpkit/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
}

// Execute runs the root command. Failures are printed to stderr; the caller
// maps the returned error onto an exit code with ExitCodeFor.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	printError(rootCmd.ErrOrStderr(), err)
	return err
}

func printError(w io.Writer, err error) {
	if err == nil {
		return
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return
	}
	var applyErr *apply.ApplyError
	if errors.As(err, &applyErr) && !applyErr.RestoreSucceeded {
		fmt.Fprint(w, clierrors.FormatError(clierrors.PartialRollback(applyErr.BackupID, applyErr)))
		return
	}
	fmt.Fprint(w, clierrors.FormatSimpleError(err))
}

// workspaceRoot returns the absolute --root directory.
func workspaceRoot() (string, error) {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return "", fmt.Errorf("resolving --root: %w", err)
	}
	return root, nil
}

// loadConfig loads the layered configuration for the workspace root.
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ProjectRoot:       root,
		ProjectConfigPath: configFlag,
		WarningWriter:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, clierrors.WrapWithMessage(err, clierrors.Configuration, "loading configuration",
			"Check .bumpkit/config.yml for typos",
			"Run 'bumpkit config keys' to list valid keys")
	}
	return cfg, nil
}

// newLogger returns a text logger on w. Debug is enabled by --verbose or the
// verbose configuration key.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose || verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session is a configured engine for one command invocation.
type session struct {
	cfg    *config.Configuration
	engine *release.Engine
	repo   *git.Repo
	logger *slog.Logger
}

// newSession loads configuration and builds the release engine. The git
// repository is optional; commands that need history fail later with a VCS
// error when it is missing.
func newSession(cmd *cobra.Command, opts ...release.Option) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	root, err := workspaceRoot()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)
	git.SetDebugLogger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})

	s := &session{cfg: cfg, logger: logger}
	base := []release.Option{release.WithLogger(logger)}
	if git.IsRepository(root) {
		repo, err := git.Open(root, git.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		s.repo = repo
		base = append(base, release.WithVcs(repo), release.WithUser(currentUser(repo)))
	} else {
		base = append(base, release.WithUser(currentUser(nil)))
	}

	s.engine, err = release.New(root, cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// repoRoot returns the repository root when it differs from the workspace.
func (s *session) repoRoot() string {
	if s.repo == nil {
		return ""
	}
	return s.repo.Root()
}

func currentUser(repo *git.Repo) string {
	if repo != nil {
		if u := repo.UserEmail(); u != "" {
			return u
		}
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return os.Getenv("USERNAME")
}
