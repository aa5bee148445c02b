// Package cmd holds the storymap command tree.
package cmd

import (
	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/profiling"
	"github.com/grovetools/storymap/version"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the storymap command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"storymap",
		"Edit a story map through a backend worker with debounced, optimistic saves",
	)
	root.Long = `storymap sends structural edits of a story map (move, rename, delete,
create) to a backend worker process. Edits are applied optimistically,
batched over a short debounce window, and rolled back if the worker
rejects them.`
	cli.SetVersionTemplate(root, version.GetInfo())
	profiling.NewCobraProfiler().Attach(root)
	startProfiling := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.SetGlobalOutput(cmd.ErrOrStderr())
		return startProfiling(cmd, args)
	}

	root.AddCommand(NewMoveCmd())
	root.AddCommand(NewRenameCmd())
	root.AddCommand(NewDeleteCmd())
	root.AddCommand(NewCreateCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewGraphCmd())
	root.AddCommand(NewCommandsCmd())
	root.AddCommand(NewDialogCmd())
	root.AddCommand(NewSaveCmd())
	root.AddCommand(NewExecCmd())
	root.AddCommand(NewDaemonCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewLogsCmd())
	root.AddCommand(NewPathsCmd())
	root.AddCommand(cli.NewVersionCommand("storymap"))

	cli.ApplyStyledHelpRecursive(root)
	return root
}
