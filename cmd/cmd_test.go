package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/grovetools/storymap/testutil"
	"github.com/grovetools/storymap/tui/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"move", "rename", "delete", "create", "status", "graph", "commands", "dialog", "save", "exec", "daemon", "config", "logs", "paths", "version"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootHasHiddenProfilingFlags(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"cpu-profile", "mem-profile", "timing"} {
		flag := root.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.True(t, flag.Hidden, name)
	}
	assert.NotNil(t, root.PersistentPreRunE)
}

func TestChangeCommandsValidateArgs(t *testing.T) {
	testutil.Isolate(t)
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	root.SetArgs([]string{"move", "story", "Login", "first"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative integer")
}

func TestRenderTree(t *testing.T) {
	theme.SetASCII(true)
	t.Cleanup(func() { theme.SetASCII(false) })

	order := 1
	graph := &storymap.Node{Name: "Shop", Type: storymap.RootType, Children: []*storymap.Node{
		{Name: "Accounts", Type: "sub_epic", Children: []*storymap.Node{
			{Name: "Login", Type: "story"},
			{Name: "Logout", Type: "story", SequentialOrder: &order},
		}},
	}}

	out := renderTree(graph, nil).String()
	for _, want := range []string{"Shop", "Accounts", "Login", "Logout", "#1", theme.IconStory} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "Login"), strings.Index(out, "Logout"))
}

func TestLastLinesAndPrint(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "storymapd-2026-01-02.log",
		"2026-01-02 10:00:00 [INFO] [queue] Batch sent\n"+
			`{"level":"error","msg":"Save rejected","component":"queue","time":"10:00:01"}`+"\n")

	lines, offset, err := lastLines(path, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Greater(t, offset, int64(0))

	var out bytes.Buffer
	printLogLine(&out, lines[0], false)
	assert.Contains(t, out.String(), "[ERROR] [queue] Save rejected")

	out.Reset()
	printLogLine(&out, "plain text", true)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "plain text", entry["msg"])

	all, _, err := lastLines(filepath.Join(dir, "storymapd-2026-01-02.log"), -1)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
