package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/bumpkit/internal/config"
	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/ariel-frischer/bumpkit/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage bumpkit configuration",
	Long: `Manage bumpkit configuration settings.

Configuration is loaded with the following priority (highest to lowest):
  1. Environment variables (BUMPKIT_*, nested keys joined with "__")
  2. Project config (.bumpkit/config.yml)
  3. User config (~/.config/bumpkit/config.yml)
  4. Built-in defaults`,
	Example: `  # Show the effective configuration
  bumpkit config show

  # Set a value in the project config
  bumpkit config set strategy unified

  # List every key
  bumpkit config keys`,
}

var configShowFormat string

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(configShowFormat, FormatYAML, FormatJSON); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return writeStructured(cmd.OutOrStdout(), configShowFormat, cfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Validate a value against the key schema and write it to the project config,
or to the user config with --user. Comments in the file are preserved.

List values are comma separated.`,
	Example: `  bumpkit config set changelog.repo_url https://github.com/acme/tools
  bumpkit config set default_releases dev,staging
  bumpkit config set watch.debounce 250ms --user`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys with types and defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printConfigKeys(cmd.OutOrStdout())
		return nil
	},
}

var configMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Convert .bumpkit/config.json to config.yml",
	Long: `Convert a legacy JSON project config to YAML. An existing config.yml is never
overwritten. The JSON file is renamed to config.json.bak after a successful
migration.`,
	Args: cobra.NoArgs,
	RunE: runConfigMigrate,
}

func init() {
	configCmd.GroupID = GroupSetup
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configKeysCmd, configMigrateCmd)

	configShowCmd.Flags().StringVarP(&configShowFormat, "format", "f", FormatYAML, "Output format: yaml, json")
	configSetCmd.Flags().Bool("user", false, "Write to the user config instead of the project config")
	configMigrateCmd.Flags().Bool("dry-run", false, "Report the migration without writing")
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	user, _ := cmd.Flags().GetBool("user")

	path, scope, err := configTarget(user)
	if err != nil {
		return err
	}
	if err := config.SetConfigValue(path, key, value); err != nil {
		return clierrors.WrapWithMessage(err, clierrors.Validation, "invalid configuration value",
			"Run 'bumpkit config keys' to list valid keys and types")
	}
	output.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Set %s = %s in %s config", key, value, scope))
	return nil
}

// configTarget returns the config file written by 'config set'.
func configTarget(user bool) (path, scope string, err error) {
	if user {
		path, err = config.UserConfigPath()
		if err != nil {
			return "", "", fmt.Errorf("locating user config: %w", err)
		}
		return path, "user", nil
	}
	if configFlag != "" {
		return configFlag, "project", nil
	}
	root, err := workspaceRoot()
	if err != nil {
		return "", "", err
	}
	return config.ProjectConfigPath(root), "project", nil
}

func printConfigKeys(w io.Writer) {
	for _, key := range config.SortedKeys() {
		schema, _ := config.GetKeySchema(key)
		typ := schema.Type.String()
		if len(schema.AllowedValues) > 0 {
			typ = strings.Join(schema.AllowedValues, "|")
		}
		fmt.Fprintf(w, "%s %s\n", key, output.Dim("("+typ+")"))
		fmt.Fprintf(w, "    %s\n", schema.Description)
		fmt.Fprintf(w, "    %s\n", output.Dim(fmt.Sprintf("default: %v", schema.Default)))
	}
}

func runConfigMigrate(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	root, err := workspaceRoot()
	if err != nil {
		return err
	}

	res, err := config.MigrateProjectConfig(root, dryRun)
	if err != nil {
		return clierrors.WrapWithMessage(err, clierrors.Configuration, "migrating configuration")
	}
	out := cmd.OutOrStdout()
	for _, key := range res.UnknownKeys {
		output.PrintWarning(out, fmt.Sprintf("unknown key %q carried over", key))
	}
	if dryRun {
		output.PrintDryRun(out, res.Message)
		return nil
	}
	if !res.Success {
		fmt.Fprintln(out, res.Message)
		return nil
	}
	if err := config.RemoveLegacyConfig(res.SourcePath, false); err != nil {
		return err
	}
	output.PrintSuccess(out, res.Message)
	return nil
}
