package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/tui/theme"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapText(t *testing.T) {
	wrapped := wrapText("one two three four five six", 10)
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), 10)
	}
	assert.Equal(t, "keep\nbreaks", wrapText("keep\nbreaks", 10))
}

func TestSplitExamples(t *testing.T) {
	desc, ex := splitExamples("Shows the graph.\n\nExamples:\n  storymap graph --find Login")
	assert.Equal(t, "Shows the graph.", desc)
	assert.Equal(t, "storymap graph --find Login", ex)

	desc, ex = splitExamples("No examples here.")
	assert.Equal(t, "No examples here.", desc)
	assert.Empty(t, ex)
}

func TestStyledHelpRendersSections(t *testing.T) {
	root := NewStandardCommand("storymap", "Edit story maps")
	child := &cobra.Command{
		Use:     "graph",
		Short:   "Show the story graph",
		Example: "storymap graph --find Login",
		RunE:    func(cmd *cobra.Command, args []string) error { return nil },
	}
	child.Flags().String("find", "", "Highlight a node")
	root.AddCommand(child)
	SetStyledHelpWithExtras(child, func(w io.Writer, th *theme.Theme) {
		fmt.Fprintln(w, "LEGEND")
	})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"graph", "--help"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "STORYMAP GRAPH")
	assert.Contains(t, text, "USAGE")
	assert.Contains(t, text, "FLAGS")
	assert.Contains(t, text, "--find")
	assert.Contains(t, text, "EXAMPLES")
	assert.Contains(t, text, "LEGEND")
}

func TestErrorHandlerHints(t *testing.T) {
	var out bytes.Buffer
	h := NewErrorHandler(&out, false)

	err := errors.DaemonUnavailable("/tmp/x.sock", nil)
	assert.Same(t, err, h.Handle(err))
	assert.Contains(t, out.String(), "storymap daemon start")

	out.Reset()
	verbose := NewErrorHandler(&out, true)
	_ = verbose.Handle(errors.NodeNotFound("story", "Login"))
	assert.Contains(t, out.String(), "Error details")
	assert.Contains(t, out.String(), "NODE_NOT_FOUND")

	assert.Empty(t, Hint(fmt.Errorf("plain")))
	assert.Nil(t, h.Handle(nil))
}
