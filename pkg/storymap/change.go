// Package storymap implements the optimistic save pipeline for story map
// edits: changes are applied to a local view immediately, committed to the
// worker in order after a debounce window, and rolled back one by one when
// the worker rejects them.
package storymap

import (
	"fmt"

	"github.com/grovetools/storymap/command"
	"github.com/grovetools/storymap/errors"
	"github.com/oklog/ulid/v2"
)

// ChangeType is the kind of structural edit.
type ChangeType string

const (
	ChangeMove   ChangeType = "move"
	ChangeRename ChangeType = "rename"
	ChangeDelete ChangeType = "delete"
	ChangeCreate ChangeType = "create"
)

// Change describes one structural edit. Fields that do not apply to the
// change type are left zero. Changes are values; nothing mutates them after
// construction.
type Change struct {
	ID   string     `json:"id"`
	Type ChangeType `json:"type"`

	NodeType string `json:"node_type"`
	NodeName string `json:"node_name,omitempty"`

	OriginalName string `json:"original_name,omitempty"`
	NewName      string `json:"new_name,omitempty"`
	NewNodeName  string `json:"new_node_name,omitempty"`

	OriginalPosition *int `json:"original_position,omitempty"`
	TargetPosition   *int `json:"target_position,omitempty"`
	NodePosition     *int `json:"node_position,omitempty"`

	ParentNodeType string `json:"parent_node_type,omitempty"`
	ParentNodeName string `json:"parent_node_name,omitempty"`
}

// NodeKey identifies a node by type and name.
type NodeKey struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (k NodeKey) String() string { return fmt.Sprintf("%s %q", k.Type, k.Name) }

func newID() string { return ulid.Make().String() }

func intPtr(n int) *int { return &n }

// NewMoveChange moves a node from one sibling position to another.
func NewMoveChange(nodeType, nodeName string, originalPosition, targetPosition int) Change {
	return Change{
		ID:               newID(),
		Type:             ChangeMove,
		NodeType:         nodeType,
		NodeName:         nodeName,
		OriginalPosition: intPtr(originalPosition),
		TargetPosition:   intPtr(targetPosition),
	}
}

// NewRenameChange renames a node.
func NewRenameChange(nodeType, originalName, newName string) Change {
	return Change{
		ID:           newID(),
		Type:         ChangeRename,
		NodeType:     nodeType,
		NodeName:     originalName,
		OriginalName: originalName,
		NewName:      newName,
	}
}

// NewDeleteChange deletes a node. The parent and position are kept so the
// node can be restored if the delete is rejected.
func NewDeleteChange(nodeType, nodeName, parentNodeType, parentNodeName string, originalPosition int) Change {
	return Change{
		ID:               newID(),
		Type:             ChangeDelete,
		NodeType:         nodeType,
		NodeName:         nodeName,
		OriginalPosition: intPtr(originalPosition),
		ParentNodeType:   parentNodeType,
		ParentNodeName:   parentNodeName,
	}
}

// NewCreateChange creates a node under a parent. A nil position appends it.
func NewCreateChange(nodeType, newNodeName, parentNodeType, parentNodeName string, position *int) Change {
	c := Change{
		ID:             newID(),
		Type:           ChangeCreate,
		NodeType:       nodeType,
		NodeName:       newNodeName,
		NewNodeName:    newNodeName,
		ParentNodeType: parentNodeType,
		ParentNodeName: parentNodeName,
	}
	if position != nil {
		c.NodePosition = intPtr(*position)
	}
	return c
}

// Subject is the node the change acts on, as it is named before the change.
func (c Change) Subject() NodeKey {
	return NodeKey{Type: c.NodeType, Name: c.NodeName}
}

// Parent is the parent named by a create or delete.
func (c Change) Parent() NodeKey {
	return NodeKey{Type: c.ParentNodeType, Name: c.ParentNodeName}
}

// Validate reports a change that cannot be rendered into a worker command.
func (c Change) Validate() error {
	invalid := func(reason string) error {
		return errors.InvalidChange(string(c.Type), reason).WithDetail("id", c.ID)
	}

	if err := command.ValidateNodeType(c.NodeType); err != nil {
		return invalid(err.Error())
	}

	switch c.Type {
	case ChangeMove:
		if err := command.ValidateName(c.NodeName); err != nil {
			return invalid(err.Error())
		}
		if c.TargetPosition == nil || *c.TargetPosition < 0 {
			return invalid("target position must be set and non-negative")
		}
	case ChangeRename:
		if err := command.ValidateName(c.OriginalName); err != nil {
			return invalid(err.Error())
		}
		if err := command.ValidateName(c.NewName); err != nil {
			return invalid("new name: " + err.Error())
		}
		if c.NewName == c.OriginalName {
			return invalid("new name equals the original name")
		}
	case ChangeDelete:
		if err := command.ValidateName(c.NodeName); err != nil {
			return invalid(err.Error())
		}
	case ChangeCreate:
		if err := command.ValidateName(c.NewNodeName); err != nil {
			return invalid(err.Error())
		}
		if err := command.ValidateNodeType(c.ParentNodeType); err != nil {
			return invalid("parent: " + err.Error())
		}
		if err := command.ValidateName(c.ParentNodeName); err != nil {
			return invalid("parent: " + err.Error())
		}
		if c.NodePosition != nil && *c.NodePosition < 0 {
			return invalid("position cannot be negative")
		}
	default:
		return invalid(fmt.Sprintf("unknown change type %q", c.Type))
	}
	return nil
}
