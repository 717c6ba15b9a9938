package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/output"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List and restore manifest backups",
	Long: `Every apply backs up the manifests it is about to rewrite under .pkg-backups/.
A failed apply restores them automatically; when that restore is incomplete
(exit status 3) use 'bumpkit backup restore <id>'.`,
}

var backupFormatFlag string

var backupListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List backups, newest last",
	Args:    cobra.NoArgs,
	RunE:    runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore every file of a backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var backupRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a backup",
	Args:    cobra.ExactArgs(1),
	RunE:    runBackupRemove,
}

func init() {
	backupCmd.GroupID = GroupRelease
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd, backupRemoveCmd)

	backupListCmd.Flags().StringVarP(&backupFormatFlag, "format", "f", FormatText, "Output format: text, json, yaml")
}

func runBackupList(cmd *cobra.Command, args []string) error {
	if err := validateFormat(backupFormatFlag, FormatText, FormatJSON, FormatYAML); err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	entries, err := s.engine.Backups().List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if backupFormatFlag != FormatText {
		return writeStructured(out, backupFormatFlag, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No backups found.")
		return nil
	}
	for _, e := range entries {
		state := "failed"
		if e.Success {
			state = "ok"
		}
		fmt.Fprintf(out, "%s  %s  %d file(s)  %s\n", e.ID, e.Operation, len(e.Files), output.Dim(state))
	}
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	unlock, err := s.engine.Store().Lock(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	restored, err := s.engine.Backups().Restore(ctx, args[0])
	out := cmd.OutOrStdout()
	for _, f := range restored {
		output.PrintSuccess(out, "restored "+relPath(s.engine.Root(), f))
	}
	return err
}

func runBackupRemove(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	if err := s.engine.Backups().Delete(args[0]); err != nil {
		return err
	}
	output.PrintSuccess(cmd.OutOrStdout(), "removed backup "+args[0])
	return nil
}
