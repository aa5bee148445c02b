package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/pkg/daemon"
	"github.com/grovetools/storymap/pkg/profiling"
	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/grovetools/storymap/tui/theme"
	"github.com/spf13/cobra"
)

// openClient connects to the daemon, or starts an in-process session
// when none is running.
func openClient(cmd *cobra.Command) (daemon.Client, error) {
	defer profiling.Start("open client").Stop()
	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.New(cli.SocketPath(cmd, cfg), cfg, cli.GetLogger(cmd))
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// renderStatus formats a status the way the save indicator shows it.
func renderStatus(s storymap.Status) string {
	text := s.Message
	if text == "" {
		text = string(s.State)
	}
	line := theme.RenderStatus(string(s.State), s.Icon+" "+text)
	if s.Pending > 0 {
		line += theme.DefaultTheme.Muted.Render(fmt.Sprintf(" (%d pending)", s.Pending))
	}
	return line
}

// renderDialog formats an error dialog inside a box.
func renderDialog(d *storymap.ErrorDialog) string {
	t := theme.DefaultTheme
	body := t.Error.Render(theme.IconError+" "+d.Title) + "\n\n" + d.Message +
		"\n\n" + t.Muted.Render(d.Stack) +
		"\n" + t.Muted.Render("shown "+d.ShownAt.Format(time.Kitchen))
	return theme.RenderBox(body)
}
