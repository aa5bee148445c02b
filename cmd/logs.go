package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grovetools/storymap/cli"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/paths"
	"github.com/grovetools/storymap/tui/theme"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	var follow bool
	var lines int
	var component string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the storymap log file",
		Long: `Shows the newest log file of a component. The daemon logs as storymapd,
commands run without a daemon log as storymap.

Examples:
  # Follow the daemon log
  storymap logs -f

  # Last 50 lines of the CLI log as JSON Lines
  storymap logs --component storymap -n 50 --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := findLogFile(cmd, component)
			if err != nil {
				return err
			}
			cli.GetLogger(cmd).WithField("log_file", path).Debug("Reading log file")

			jsonOut := cli.GetOptions(cmd).JSONOutput
			out := cmd.OutOrStdout()

			recent, offset, err := lastLines(path, lines)
			if err != nil {
				return err
			}
			for _, line := range recent {
				printLogLine(out, line, jsonOut)
			}
			if !follow {
				return nil
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:   true,
				ReOpen:   true,
				Location: &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
				Logger:   stdlog.New(io.Discard, "", 0), // Suppress tail library debug output
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "cannot follow log file").WithDetail("path", path)
			}
			defer t.Cleanup()

			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return t.Stop()
				case line, ok := <-t.Lines:
					if !ok {
						return t.Err()
					}
					if line.Err != nil {
						continue
					}
					printLogLine(out, line.Text, jsonOut)
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of lines to show from the end (-1 for all)")
	cmd.Flags().StringVar(&component, "component", "storymapd", "Component whose log to show")
	return cmd
}

// findLogFile returns the configured log file, or the newest
// <component>-<date>.log in the log directory.
func findLogFile(cmd *cobra.Command, component string) (string, error) {
	if cfg, err := cli.LoadConfig(cmd); err == nil {
		var logCfg logging.Config
		if err := cfg.UnmarshalExtension("logging", &logCfg); err == nil && logCfg.File.Path != "" {
			return logCfg.File.Path, nil
		}
	}

	dir := paths.LogDir()
	matches, err := filepath.Glob(filepath.Join(dir, component+"-*.log"))
	if err != nil || len(matches) == 0 {
		return "", errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("no %s log files in %s", component, dir))
	}
	// Dates in the name sort chronologically.
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// lastLines returns the last n lines of path (all when n < 0) and the file
// size to continue following from.
func lastLines(path string, n int) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "cannot open log file").WithDetail("path", path)
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			all = append(all, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "cannot read log file").WithDetail("path", path)
	}

	offset, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		offset = 0
	}
	if n >= 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, offset, nil
}

// printLogLine prints a text or JSON log line. With jsonOut every line is
// emitted as a JSON object.
func printLogLine(w io.Writer, line string, jsonOut bool) {
	var entry map[string]interface{}
	isJSON := json.Unmarshal([]byte(line), &entry) == nil

	if jsonOut {
		if !isJSON {
			entry = map[string]interface{}{"msg": line}
		}
		data, _ := json.Marshal(entry)
		fmt.Fprintln(w, string(data))
		return
	}

	if !isJSON {
		fmt.Fprintln(w, colorLevel(line))
		return
	}
	level, _ := entry["level"].(string)
	text := fmt.Sprintf("%v [%s]", entry["time"], strings.ToUpper(level))
	if component, ok := entry["component"]; ok {
		text += fmt.Sprintf(" [%v]", component)
	}
	text += fmt.Sprintf(" %v", entry["msg"])
	fmt.Fprintln(w, colorLevel(text))
}

func colorLevel(line string) string {
	t := theme.DefaultTheme
	switch {
	case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[FATAL]"):
		return t.Error.Render(line)
	case strings.Contains(line, "[WARN]"):
		return t.Warning.Render(line)
	case strings.Contains(line, "[DEBUG]"), strings.Contains(line, "[TRACE]"):
		return t.Muted.Render(line)
	}
	return line
}
