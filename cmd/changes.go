package cmd

import (
	"fmt"
	"strconv"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/profiling"
	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/spf13/cobra"
)

type changeFlags struct {
	wait bool
}

func (f *changeFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.wait, "wait", true, "Wait until the change is saved or rejected")
}

// submit enqueues change and, with --wait, reports how the save ended.
func submit(cmd *cobra.Command, change storymap.Change, f *changeFlags) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	span := profiling.Start("enqueue")
	err = client.Enqueue(ctx, change)
	span.Stop()
	if err != nil {
		return err
	}
	if !f.wait {
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (%s)\n", change.Type, change.ID)
		return nil
	}

	span = profiling.Start("wait for save")
	status, err := client.Flush(ctx, 0)
	span.Stop()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status))

	if status.State != storymap.StateError {
		return nil
	}
	dialog, err := client.ErrorDialog(ctx)
	if err != nil {
		return err
	}
	if dialog != nil && dialog.ChangeID == change.ID {
		fmt.Fprintln(cmd.ErrOrStderr(), renderDialog(dialog))
		return errors.CommandRejected(dialog.Command, dialog.ErrorType, dialog.Message)
	}
	return nil
}

func parsePosition(arg, what string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s must be a non-negative integer, got %q", what, arg))
	}
	return n, nil
}

// NewMoveCmd returns the move command.
func NewMoveCmd() *cobra.Command {
	var f changeFlags
	var from int
	cmd := &cobra.Command{
		Use:   "move <type> <name> <position>",
		Short: "Move a node to a new position among its siblings",
		Example: `storymap move story "Login" 0
storymap move sub_epic "Checkout" 2 --from 4`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parsePosition(args[2], "position")
			if err != nil {
				return err
			}
			return submit(cmd, storymap.NewMoveChange(args[0], args[1], from, target), &f)
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "Position the node is moving from, restored on rollback")
	f.register(cmd)
	return cmd
}

// NewRenameCmd returns the rename command.
func NewRenameCmd() *cobra.Command {
	var f changeFlags
	cmd := &cobra.Command{
		Use:     "rename <type> <old-name> <new-name>",
		Short:   "Rename a node",
		Example: `storymap rename story "Login" "Sign in"`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, storymap.NewRenameChange(args[0], args[1], args[2]), &f)
		},
	}
	f.register(cmd)
	return cmd
}

// NewDeleteCmd returns the delete command.
func NewDeleteCmd() *cobra.Command {
	var f changeFlags
	var parentType, parentName string
	var position int
	cmd := &cobra.Command{
		Use:   "delete <type> <name>",
		Short: "Delete a node and its children",
		Long: `Delete a node and its children. The parent and position are only used to
put the node back if the worker rejects the delete.`,
		Example: `storymap delete story "Logout" --parent-type sub_epic --parent "Accounts" --position 1`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, storymap.NewDeleteChange(args[0], args[1], parentType, parentName, position), &f)
		},
	}
	cmd.Flags().StringVar(&parentType, "parent-type", "", "Type of the node's parent")
	cmd.Flags().StringVar(&parentName, "parent", "", "Name of the node's parent")
	cmd.Flags().IntVar(&position, "position", 0, "Position of the node under its parent")
	f.register(cmd)
	return cmd
}

// NewCreateCmd returns the create command.
func NewCreateCmd() *cobra.Command {
	var f changeFlags
	var position int
	cmd := &cobra.Command{
		Use:   "create <type> <name> <parent-type> <parent-name>",
		Short: "Create a node under a parent",
		Example: `storymap create story "Refund" sub_epic "Checkout"
storymap create sub_epic "Accounts" root "Story Map" --position 0`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pos *int
			if cmd.Flags().Changed("position") {
				if position < 0 {
					return errors.New(errors.ErrCodeInvalidInput, "position must be non-negative")
				}
				pos = &position
			}
			return submit(cmd, storymap.NewCreateChange(args[0], args[1], args[2], args[3], pos), &f)
		},
	}
	cmd.Flags().IntVar(&position, "position", 0, "Position under the parent (default: last)")
	f.register(cmd)
	return cmd
}
