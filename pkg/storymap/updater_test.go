package storymap

import (
	"testing"

	"github.com/grovetools/storymap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(n int) *int { return &n }

// sampleSnapshot lists groups out of order: children of "Accounts" appear
// before "Accounts" itself is attached to the root.
func sampleSnapshot() FlatParentMap {
	return FlatParentMap{
		Root: "Shop",
		Groups: []ChildGroup{
			{
				ParentNodeType: "story", ParentNodeName: "Login",
				Children: []SnapshotNode{{Name: "Wrong password", Type: "scenario"}},
			},
			{
				ParentNodeType: "sub_epic", ParentNodeName: "Accounts",
				Children: []SnapshotNode{
					{Name: "Logout", Type: "story", SequentialOrder: order(1)},
					{Name: "Login", Type: "story", SequentialOrder: order(0)},
				},
			},
			{
				ParentNodeType: "root", ParentNodeName: "Shop",
				Children: []SnapshotNode{
					{Name: "Accounts", Type: "sub_epic", SequentialOrder: order(0)},
					{Name: "Checkout", Type: "sub_epic", SequentialOrder: order(1)},
				},
			},
		},
	}
}

func childNames(n *Node) []string {
	var names []string
	for _, c := range n.Children {
		names = append(names, c.Name)
	}
	return names
}

func TestLoadAttachesGroupsInAnyOrder(t *testing.T) {
	root, err := NewUpdater(FailOnMissing, nil).Load(sampleSnapshot(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Shop", root.Name)
	assert.Equal(t, RootType, root.Type)
	assert.Equal(t, []string{"Accounts", "Checkout"}, childNames(root))

	accounts := Find(root, "sub_epic", "Accounts")
	require.NotNil(t, accounts)
	assert.Equal(t, []string{"Login", "Logout"}, childNames(accounts), "siblings sort by sequential order")

	login := Find(root, "story", "Login")
	require.NotNil(t, login)
	assert.Equal(t, []string{"Wrong password"}, childNames(login))
	assert.Equal(t, 6, Count(root))
}

func TestSnapshotRoundTrip(t *testing.T) {
	u := NewUpdater(FailOnMissing, nil)
	first, err := u.Load(sampleSnapshot(), nil)
	require.NoError(t, err)

	second, err := u.Load(Flatten(first), nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReplayPersistedCommands(t *testing.T) {
	persisted := func(c Change) Command { return Command{Change: c, Persisted: true} }
	pos := 0

	executed := []Command{
		persisted(NewMoveChange("story", "Logout", 1, 5)),
		persisted(NewRenameChange("sub_epic", "Checkout", "Payments")),
		persisted(NewDeleteChange("scenario", "Wrong password", "story", "Login", 0)),
		persisted(NewCreateChange("story", "Refund", "sub_epic", "Payments", &pos)),
		{Change: NewRenameChange("story", "Login", "Sign in")},
	}

	root, err := NewUpdater(FailOnMissing, nil).Load(sampleSnapshot(), executed)
	require.NoError(t, err)

	logout := Find(root, "story", "Logout")
	require.NotNil(t, logout)
	assert.Equal(t, 5, *logout.SequentialOrder)

	assert.Nil(t, Find(root, "sub_epic", "Checkout"))
	payments := Find(root, "sub_epic", "Payments")
	require.NotNil(t, payments)
	assert.Equal(t, []string{"Refund"}, childNames(payments))
	assert.Equal(t, 0, *payments.Children[0].SequentialOrder)

	assert.Nil(t, Find(root, "scenario", "Wrong password"))
	assert.NotNil(t, Find(root, "story", "Login"), "unpersisted commands are not replayed")
	assert.Nil(t, Find(root, "story", "Sign in"))
}

func TestCreateUnderRoot(t *testing.T) {
	executed := []Command{{
		Change:    NewCreateChange("sub_epic", "Search", "root", "Shop", nil),
		Persisted: true,
	}}
	root, err := NewUpdater(FailOnMissing, nil).Load(sampleSnapshot(), executed)
	require.NoError(t, err)
	assert.Equal(t, []string{"Accounts", "Checkout", "Search"}, childNames(root))
}

func TestMissingNodePolicy(t *testing.T) {
	flat := sampleSnapshot()
	flat.Groups = append(flat.Groups, ChildGroup{
		ParentNodeType: "story", ParentNodeName: "Nowhere",
		Children: []SnapshotNode{{Name: "Orphan", Type: "scenario"}},
	})
	executed := []Command{{Change: NewMoveChange("story", "Ghost", 0, 1), Persisted: true}}

	t.Run("skip", func(t *testing.T) {
		root, err := NewUpdater(SkipMissing, nil).Load(flat, executed)
		require.NoError(t, err)
		assert.Nil(t, Find(root, "scenario", "Orphan"))
		assert.Equal(t, 6, Count(root))
	})

	t.Run("fail on orphan group", func(t *testing.T) {
		_, err := NewUpdater(FailOnMissing, nil).Load(flat, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeNodeNotFound))
	})

	t.Run("fail on replay", func(t *testing.T) {
		_, err := NewUpdater(FailOnMissing, nil).Load(sampleSnapshot(), executed)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCodeNodeNotFound))
		name, _ := errors.Detail(err, "name")
		assert.Equal(t, "Ghost", name)
	})
}

func TestFindReturnsFirstMatch(t *testing.T) {
	root := &Node{Name: "Shop", Type: RootType, Children: []*Node{
		{Name: "A", Type: "sub_epic", Children: []*Node{{Name: "Dup", Type: "story", SequentialOrder: order(1)}}},
		{Name: "B", Type: "sub_epic", Children: []*Node{{Name: "Dup", Type: "story", SequentialOrder: order(2)}}},
	}}

	found := Find(root, "story", "Dup")
	require.NotNil(t, found)
	assert.Equal(t, 1, *found.SequentialOrder)
	assert.Nil(t, Find(root, "epic", "Dup"), "type must match too")
	assert.Nil(t, Find(nil, "story", "Dup"))
}

func TestParseMissingNodePolicy(t *testing.T) {
	p, err := ParseMissingNodePolicy("fail")
	require.NoError(t, err)
	assert.Equal(t, FailOnMissing, p)

	p, err = ParseMissingNodePolicy("")
	require.NoError(t, err)
	assert.Equal(t, SkipMissing, p)

	_, err = ParseMissingNodePolicy("explode")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}
