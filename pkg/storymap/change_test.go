package storymap

import (
	"strings"
	"testing"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsPopulateOnlyRelevantFields(t *testing.T) {
	move := NewMoveChange("story", "Login", 0, 2)
	assert.Equal(t, ChangeMove, move.Type)
	assert.Equal(t, 0, *move.OriginalPosition)
	assert.Equal(t, 2, *move.TargetPosition)
	assert.Empty(t, move.NewName)
	assert.Nil(t, move.NodePosition)

	rename := NewRenameChange("epic", "Checkout", "Payments")
	assert.Equal(t, "Checkout", rename.NodeName)
	assert.Equal(t, "Checkout", rename.OriginalName)
	assert.Equal(t, "Payments", rename.NewName)
	assert.Nil(t, rename.TargetPosition)

	del := NewDeleteChange("story", "Logout", "sub_epic", "Accounts", 3)
	assert.Equal(t, NodeKey{Type: "sub_epic", Name: "Accounts"}, del.Parent())
	assert.Equal(t, 3, *del.OriginalPosition)

	create := NewCreateChange("scenario", "Happy path", "story", "Login", nil)
	assert.Equal(t, "Happy path", create.NewNodeName)
	assert.Nil(t, create.NodePosition)

	assert.NotEqual(t, move.ID, rename.ID, "every change gets its own id")
	assert.Len(t, move.ID, 26)
}

func TestChangeValidate(t *testing.T) {
	pos := -1
	tests := []struct {
		name    string
		change  Change
		wantErr string
	}{
		{name: "valid move", change: NewMoveChange("story", "Login", 1, 0)},
		{name: "valid rename", change: NewRenameChange("story", "Login", "Sign in")},
		{name: "valid delete", change: NewDeleteChange("story", "Login", "sub_epic", "Auth", 0)},
		{name: "valid create", change: NewCreateChange("story", "Signup", "sub_epic", "Auth", nil)},
		{name: "negative target", change: NewMoveChange("story", "Login", 0, -2), wantErr: "target position"},
		{name: "empty name", change: NewDeleteChange("story", " ", "sub_epic", "Auth", 0), wantErr: "cannot be empty"},
		{name: "bad node type", change: NewMoveChange("Story", "Login", 0, 1), wantErr: "invalid node type"},
		{name: "rename to same name", change: NewRenameChange("story", "Login", "Login"), wantErr: "equals the original"},
		{name: "rename with newline", change: NewRenameChange("story", "Login", "a\nb"), wantErr: "line breaks"},
		{name: "create without parent", change: NewCreateChange("story", "Signup", "sub_epic", "", nil), wantErr: "parent"},
		{name: "create negative position", change: NewCreateChange("story", "Signup", "sub_epic", "Auth", &pos), wantErr: "negative"},
		{name: "unknown type", change: Change{Type: "copy", NodeType: "story"}, wantErr: "unknown change type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.change.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidChange))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRenderCommand(t *testing.T) {
	pos := 1
	tests := []struct {
		change Change
		want   string
	}{
		{NewMoveChange("story", "Login", 0, 2), `move "Login" to position 2`},
		{NewRenameChange("story", "Login", `Say "hi"`), `rename "Login" to "Say \"hi\""`},
		{NewDeleteChange("epic", "Checkout", "root", "Shop", 0), `delete "Checkout"`},
		{NewCreateChange("story", "Signup", "sub_epic", "Auth", nil), `create story "Signup" under sub_epic "Auth"`},
		{NewCreateChange("story", "Signup", "sub_epic", "Auth", &pos), `create story "Signup" under sub_epic "Auth" at position 1`},
	}

	for _, tt := range tests {
		t.Run(string(tt.change.Type), func(t *testing.T) {
			got, err := RenderCommand(tt.change)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.Contains(got, "\n"))
		})
	}

	_, err := RenderCommand(Change{Type: "copy"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidChange))
}

func TestClassifyErrorType(t *testing.T) {
	tests := []struct {
		errorType string
		message   string
		want      ErrorClass
	}{
		{"validation", "anything", ClassValidation},
		{"hierarchy", "Name is required", ClassHierarchy},
		{"", "Name is required", ClassValidation},
		{"", "name too long", ClassValidation},
		{"", "Story already exists under this sub-epic", ClassHierarchy},
		{"", "Parent epic not found", ClassHierarchy},
		{"", "Story name must be unique", ClassHierarchy},
		{"", "Duplicate story name: names must be unique under a sub-epic", ClassHierarchy},
		{"", "Login already exists under Accounts", ClassHierarchy},
		{"", "Invalid position", ClassValidation},
		{"", "Cannot move under its own parent", ClassHierarchy},
		{"", "disk full", ClassUnknown},
		{"weird", "disk full", ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.errorType+"/"+tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyErrorType(tt.errorType, tt.message))
		})
	}

	resp := channel.Response{"status": "error", "message": "cycle detected", "error_type": ""}
	assert.Equal(t, ClassHierarchy, ClassifyError(resp))
}
