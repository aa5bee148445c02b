package cmd

import (
	"fmt"

	"github.com/grovetools/storymap/cli"
	"github.com/spf13/cobra"
)

// NewDialogCmd returns the dialog command.
func NewDialogCmd() *cobra.Command {
	var dismiss bool
	cmd := &cobra.Command{
		Use:   "dialog",
		Short: "Show or dismiss the error dialog for the last rejected change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx := cmd.Context()

			if dismiss {
				return client.DismissErrorDialog(ctx)
			}
			dialog, err := client.ErrorDialog(ctx)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, dialog)
			}
			if dialog == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No error dialog")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDialog(dialog))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dismiss, "dismiss", false, "Close the dialog")
	return cmd
}

// NewSaveCmd returns the save command, which confirms or fails the
// current save cycle for workers that report results out of band.
func NewSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Confirm or fail the current save cycle",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "complete",
		Short: "Mark the current save as successful",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			status, err := client.CompleteSave(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(status))
			return nil
		},
	})

	var errorType, message string
	fail := &cobra.Command{
		Use:   "fail",
		Short: "Report a worker failure for the last attempted change",
		Long: `Report a worker failure for the last attempted change. Its optimistic
update is rolled back, its command no longer counts as persisted, and the
error dialog opens.`,
		Example: `storymap save fail --type validation --message "Name is required"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			rolledBack, err := client.ReturnError(cmd.Context(), errorType, message)
			if err != nil {
				return err
			}
			if !rolledBack {
				fmt.Fprintln(cmd.OutOrStdout(), "No change to roll back")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rolled back the last attempted change")
			return nil
		},
	}
	fail.Flags().StringVar(&errorType, "type", "", "Error type reported by the worker (e.g. validation, hierarchy)")
	fail.Flags().StringVar(&message, "message", "", "Error message reported by the worker")
	cmd.AddCommand(fail)

	return cmd
}
