package logging

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/grovetools/storymap/tui/theme"
	"github.com/sirupsen/logrus"
)

// TextFormatter writes one line per entry:
//
//	15:04:05.000 [WARN] [channel] worker exited change=01J... command="status --json" error="EOF"
//
// Fields are sorted, except "error" which always comes last. Values with
// spaces or quotes are Go-quoted so the line splits back on spaces.
type TextFormatter struct {
	Config FormatConfig
}

const timeLayout = "2006-01-02 15:04:05.000"

// Format implements logrus.Formatter.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format(timeLayout))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s]", levelName(entry.Level))

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		fmt.Fprintf(&b, " [%s]", theme.DefaultTheme.Accent.Render(fmt.Sprint(component)))
	}
	if entry.HasCaller() {
		fmt.Fprintf(&b, " [%s:%d]", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if key != "component" && key != logrus.ErrorKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if _, ok := entry.Data[logrus.ErrorKey]; ok {
		keys = append(keys, logrus.ErrorKey)
	}
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, fieldValue(entry.Data[key]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelName(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(level.String())
}

func fieldValue(v interface{}) string {
	s := fmt.Sprint(v)
	if err, ok := v.(error); ok {
		s = err.Error()
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
