package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/tui/theme"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(out io.Writer, verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     out,
	}
}

// Hint returns the follow-up advice for an error code, or "".
func Hint(err error) string {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		return "Create a storymap.yml with a worker section, or pass --config."
	case errors.ErrCodeConfigInvalid:
		return "Check the file with 'storymap config validate'."
	case errors.ErrCodeWorkerSpawn:
		return "Check worker.command and worker.working_dir in storymap.yml."
	case errors.ErrCodeWorkerTimeout:
		return "The worker did not print its sentinel in time. Raise worker.timeout or check that it flushes output."
	case errors.ErrCodeWorkerExited:
		return "The worker exited. It is restarted on the next command; see 'storymap logs' for details."
	case errors.ErrCodeMalformedResponse:
		return "The worker printed something that is not JSON before its sentinel. Check worker.output_flag."
	case errors.ErrCodeDaemonUnavailable:
		return "Start the daemon with 'storymap daemon start'."
	case errors.ErrCodeNodeNotFound:
		return "Run 'storymap graph' to see the current story map."
	case errors.ErrCodeSnapshot:
		return "Check graph.snapshot in storymap.yml, or export one with 'storymap graph --export'."
	}
	return ""
}

// Handle prints err with a hint for known codes and returns it unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	t := theme.DefaultTheme
	red := lipgloss.NewStyle().Bold(true).Foreground(t.Colors.Red)

	if e, ok := err.(*errors.Error); ok && !h.Verbose {
		fmt.Fprintf(h.Out, "%s %s %s\n", theme.IconError, red.Render("Error:"), e.Message)
	} else {
		fmt.Fprintf(h.Out, "%s %s %v\n", theme.IconError, red.Render("Error:"), err)
	}

	if hint := Hint(err); hint != "" {
		fmt.Fprintln(h.Out, t.Muted.Render(hint))
	}

	// If verbose mode, show full error details
	if h.Verbose {
		if e, ok := err.(*errors.Error); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", e.ToJSON())
		}
	}
	return err
}
