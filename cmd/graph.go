package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/grovetools/storymap/tui/theme"
	"github.com/spf13/cobra"
)

// NewGraphCmd returns the graph command.
func NewGraphCmd() *cobra.Command {
	var find, export string
	var reload bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the story graph with saved changes replayed",
		Long: `Show the story graph: the snapshot with every persisted command replayed
in order. Changes still waiting in the queue are not included.`,
		Example: `storymap graph
storymap graph --find story:Login
storymap graph --export graph.snapshot.yml
storymap graph --reload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx := cmd.Context()

			if reload {
				groups, err := client.ReloadSnapshot(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Reloaded snapshot (%d groups)\n", groups)
			}

			if find != "" {
				nodeType, name, ok := strings.Cut(find, ":")
				if !ok {
					return errors.New(errors.ErrCodeInvalidInput, "--find takes type:name")
				}
				node, err := client.FindNode(ctx, nodeType, name)
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return printJSON(cmd, node)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTree(node, node).String())
				return nil
			}

			graph, err := client.StoryGraph(ctx)
			if err != nil {
				return err
			}
			if export != "" {
				if err := storymap.SaveSnapshot(export, storymap.Flatten(graph)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d nodes to %s\n", storymap.Count(graph), export)
				return nil
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, graph)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTree(graph, nil).String())
			return nil
		},
	}
	cmd.Flags().StringVar(&find, "find", "", "Show only the subtree of the first node matching type:name")
	cmd.Flags().StringVar(&export, "export", "", "Write the graph as a snapshot file (.json, .yml)")
	cmd.Flags().BoolVar(&reload, "reload", false, "Reread the snapshot file before showing the graph")
	cli.SetStyledHelpWithExtras(cmd, func(w io.Writer, t *theme.Theme) {
		fmt.Fprintln(w, "\n "+lipgloss.NewStyle().Italic(true).Foreground(t.Colors.Orange).Render("LEGEND"))
		for _, nodeType := range []string{storymap.RootType, "epic", "sub_epic", "story", "scenario"} {
			fmt.Fprintf(w, " %s %s\n", t.NodeStyle(nodeType).Render(theme.NodeIcon(nodeType)), nodeType)
		}
	})
	return cmd
}

// renderTree renders n and its children with type icons.
func renderTree(n *storymap.Node, highlight *storymap.Node) *tree.Tree {
	t := theme.DefaultTheme
	label := t.NodeStyle(n.Type).Render(theme.NodeIcon(n.Type)) + " " + n.Name
	if n == highlight {
		label = t.Highlight.Render(label)
	}
	if n.SequentialOrder != nil {
		label += t.Muted.Render(" #" + strconv.Itoa(*n.SequentialOrder))
	}

	root := tree.Root(label).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(lipgloss.NewStyle().Foreground(t.Colors.Border))
	for _, child := range n.Children {
		if len(child.Children) == 0 {
			root.Child(renderTree(child, highlight).String())
			continue
		}
		root.Child(renderTree(child, highlight))
	}
	return root
}

// NewCommandsCmd returns the commands command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands sent to the worker, in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			cmds, err := client.ExecutedCommands(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, cmds)
			}
			if len(cmds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No commands sent yet")
				return nil
			}

			th := theme.DefaultTheme
			tbl := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(th.Colors.Border)).
				Headers("#", "COMMAND", "SAVED", "ID").
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == table.HeaderRow {
						return th.Bold.Padding(0, 1)
					}
					return lipgloss.NewStyle().Padding(0, 1)
				})
			for i, c := range cmds {
				saved := th.Error.Render(theme.IconError)
				if c.Persisted {
					saved = th.Success.Render(theme.IconSuccess)
				}
				tbl.Row(strconv.Itoa(i+1), c.Text, saved, th.Muted.Render(c.ID))
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
			return nil
		},
	}
}
