package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/backup"
	"github.com/ariel-frischer/bumpkit/internal/changeset"
	"github.com/ariel-frischer/bumpkit/internal/config"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/fsutil"
	"github.com/ariel-frischer/bumpkit/internal/output"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up bumpkit in a workspace",
	Long: `Set up bumpkit in the workspace at --root:

  - writes a commented .bumpkit/config.yml (or the user config with --user)
  - creates the .changesets/ directory
  - ignores the backup directory and the changeset lock in .gitignore

Existing config files are kept unless --force is given.`,
	Example: `  bumpkit init
  bumpkit init --force
  bumpkit init --user`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.GroupID = GroupSetup
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
	initCmd.Flags().Bool("user", false, "Write the user config instead of the project config")
	initCmd.Flags().Bool("no-gitignore", false, "Do not modify .gitignore")
}

// gitignoreEntries are appended to the workspace .gitignore by init.
var gitignoreEntries = []string{
	backup.DirName + "/",
	changeset.DirName + "/" + changeset.LockFileName,
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	user, _ := cmd.Flags().GetBool("user")
	noGitignore, _ := cmd.Flags().GetBool("no-gitignore")
	out := cmd.OutOrStdout()

	path, scope, err := configTarget(user)
	if err != nil {
		return err
	}
	if user {
		return writeConfigTemplate(out, path, scope, force)
	}

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	if !fsutil.Exists(filepath.Join(root, "package.json")) {
		return clierrors.NotAWorkspace(root)
	}
	if err := writeConfigTemplate(out, path, scope, force); err != nil {
		return err
	}

	dir := filepath.Join(root, changeset.DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	output.PrintSuccess(out, "Changeset directory: "+changeset.DirName+"/")

	if noGitignore {
		return nil
	}
	added, err := ensureGitignore(filepath.Join(root, ".gitignore"), gitignoreEntries)
	if err != nil {
		return err
	}
	if len(added) > 0 {
		output.PrintSuccess(out, "Added to .gitignore: "+strings.Join(added, ", "))
	}
	return nil
}

func writeConfigTemplate(out io.Writer, path, scope string, force bool) error {
	if fsutil.Exists(path) && !force {
		fmt.Fprintf(out, "%s %s config exists: %s %s\n", output.Dim("-"), scope, path, output.Dim("(use --force to overwrite)"))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := fsutil.AtomicWriteFile(path, []byte(config.GetDefaultConfigTemplate()), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	output.PrintSuccess(out, fmt.Sprintf("Created %s config: %s", scope, path))
	return nil
}

// ensureGitignore appends the missing entries to the .gitignore at path and
// returns the ones it added.
func ensureGitignore(path string, entries []string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading .gitignore: %w", err)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		present[strings.TrimSpace(line)] = true
	}
	var added []string
	for _, e := range entries {
		if !present[e] {
			added = append(added, e)
		}
	}
	if len(added) == 0 {
		return nil, nil
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += "\n# bumpkit\n" + strings.Join(added, "\n") + "\n"
	if err := fsutil.AtomicWriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("writing .gitignore: %w", err)
	}
	return added, nil
}
