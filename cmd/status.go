package cmd

import (
	"fmt"

	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/pkg/daemon"
	"github.com/grovetools/storymap/tui/theme"
	"github.com/spf13/cobra"
)

// NewStatusCmd returns the status command.
func NewStatusCmd() *cobra.Command {
	var follow, dismiss bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the save status and queue",
		Long: `Show the save status indicator, the queue length and the last command sent
to the worker. With --follow, stream status changes from the daemon.`,
		Example: `storymap status
storymap status --follow
storymap status --dismiss`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow {
				return followStatus(cmd)
			}

			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx := cmd.Context()

			status, err := client.Status(ctx)
			if dismiss && err == nil {
				status, err = client.DismissStatus(ctx)
			}
			if err != nil {
				return err
			}
			queue, err := client.Queue(ctx)
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, map[string]interface{}{
					"status": status,
					"queue":  queue,
					"daemon": client.IsRunning(),
				})
			}

			t := theme.DefaultTheme
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatus(status))
			fmt.Fprintf(out, "%s %d queued\n", t.Muted.Render("Queue:"), queue.Length)
			if queue.LastAttempted != nil {
				fmt.Fprintf(out, "%s %s\n", t.Muted.Render("Last:"), t.Code.Render(queue.LastAttempted.Text))
			}
			mode := "in-process"
			if client.IsRunning() {
				mode = "daemon"
			}
			fmt.Fprintf(out, "%s %s\n", t.Muted.Render("Mode:"), mode)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream status updates from the daemon")
	cmd.Flags().BoolVar(&dismiss, "dismiss", false, "Clear the status line, including a sticky error")
	return cmd
}

func followStatus(cmd *cobra.Command) error {
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	client, err := daemon.Connect(cli.SocketPath(cmd, cfg))
	if err != nil {
		return err
	}
	defer client.Close()

	updates, err := client.StreamState(cmd.Context())
	if err != nil {
		return err
	}
	jsonOut := cli.GetOptions(cmd).JSONOutput
	for u := range updates {
		if jsonOut {
			if err := printJSON(cmd, u); err != nil {
				return err
			}
			continue
		}
		switch {
		case u.Status != nil:
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(*u.Status))
		case u.Dialog != nil:
			fmt.Fprintln(cmd.OutOrStdout(), renderDialog(u.Dialog))
		case u.UpdateType == "graph":
			fmt.Fprintln(cmd.OutOrStdout(), theme.DefaultTheme.Muted.Render("story graph reloaded"))
		}
	}
	return nil
}
