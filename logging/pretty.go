package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/storymap/tui/theme"
)

// PrettyLogger prints user-facing CLI messages, separate from structured logs.
type PrettyLogger struct {
	writer io.Writer
}

// NewPrettyLogger writes to stderr.
func NewPrettyLogger() *PrettyLogger {
	return &PrettyLogger{writer: os.Stderr}
}

// WithWriter sets a custom writer for pretty output
func (p *PrettyLogger) WithWriter(w io.Writer) *PrettyLogger {
	p.writer = w
	return p
}

func (p *PrettyLogger) Success(message string) {
	fmt.Fprintf(p.writer, "%s %s\n",
		theme.DefaultTheme.Success.Render(theme.IconSuccess),
		theme.DefaultTheme.Success.Render(message))
}

func (p *PrettyLogger) Info(message string) {
	fmt.Fprintf(p.writer, "%s %s\n",
		theme.DefaultTheme.Info.Render(theme.IconInfo),
		message)
}

func (p *PrettyLogger) Warn(message string) {
	fmt.Fprintf(p.writer, "%s %s\n",
		theme.DefaultTheme.Warning.Render(theme.IconWarning),
		theme.DefaultTheme.Warning.Render(message))
}

func (p *PrettyLogger) Error(message string, err error) {
	fmt.Fprintf(p.writer, "%s %s",
		theme.DefaultTheme.Error.Render(theme.IconError),
		theme.DefaultTheme.Error.Render(message))
	if err != nil {
		fmt.Fprintf(p.writer, ": %s", err.Error())
	}
	fmt.Fprintln(p.writer)
}

// Field prints an aligned key/value pair.
func (p *PrettyLogger) Field(key string, value interface{}) {
	fmt.Fprintf(p.writer, "  %-10s %s\n",
		theme.DefaultTheme.Muted.Render(key+":"),
		fmt.Sprint(value))
}
