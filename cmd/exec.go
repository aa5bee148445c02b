package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/tui/theme"
	"github.com/spf13/cobra"
)

// NewExecCmd returns the exec command.
func NewExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command line>",
		Short: "Send one raw command to the worker and print its response",
		Long: `Send one raw command to the worker and print its JSON response. The command
waits for any save in progress so it never interleaves with queued changes.`,
		Example: `storymap exec status
storymap exec show story "Login"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Exec(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, resp)
			}

			t := theme.DefaultTheme
			keys := make([]string, 0, len(resp))
			for k := range resp {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", t.Muted.Render(k+":"), resp[k])
			}
			if resp.IsError() {
				return fmt.Errorf("worker reported an error: %s", resp.ErrorMessage())
			}
			return nil
		},
	}
}
