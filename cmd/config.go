package cmd

import (
	"fmt"
	"os"

	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/config"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/tui/theme"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd returns the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate storymap configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with defaults applied",
		Long: `Shows the configuration commands run with, built by merging layers:
1. Global config (~/.config/storymap/storymap.yml)
2. Project config (storymap.yml in this directory or a parent)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for storymap.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a configuration file against the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cli.GetOptions(cmd).ConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				if path, err = config.FindConfigFile(cwd); err != nil {
					return err
				}
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return errors.ConfigNotFound(path)
			}
			if err := config.ValidateDocument(data, config.FormatFor(path)); err != nil {
				return err
			}
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", theme.DefaultTheme.Success.Render(theme.IconSuccess), path)
			return nil
		},
	})

	return cmd
}
