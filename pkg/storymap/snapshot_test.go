package storymap

import (
	"path/filepath"
	"testing"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotFileRoundTrip(t *testing.T) {
	for _, name := range []string{"graph.snapshot", "graph.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, SaveSnapshot(path, sampleSnapshot()))

			loaded, err := LoadSnapshot(path)
			require.NoError(t, err)
			assert.Equal(t, sampleSnapshot(), loaded)
		})
	}
}

func TestLoadHandWrittenYAMLSnapshot(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "map.yaml", `
root: Shop
groups:
  - parent_node_type: root
    parent_node_name: Shop
    children:
      - {name: Accounts, type: sub_epic, sequential_order: 0}
  - parent_node_type: sub_epic
    parent_node_name: Accounts
    children:
      - {name: Login, type: story}
`)
	flat, err := LoadSnapshot(path)
	require.NoError(t, err)

	root, err := NewUpdater(FailOnMissing, nil).Load(flat, nil)
	require.NoError(t, err)
	assert.NotNil(t, Find(root, "story", "Login"))
}

func TestLoadSnapshotErrors(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.snapshot"))
	assert.True(t, errors.Is(err, errors.ErrCodeSnapshot))

	path := testutil.WriteFile(t, t.TempDir(), "bad.snapshot", "{not json")
	_, err = LoadSnapshot(path)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}
