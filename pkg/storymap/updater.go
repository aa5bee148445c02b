package storymap

import (
	"fmt"
	"sort"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/logging"
	"github.com/sirupsen/logrus"
)

// RootType is the node type of the graph root.
const RootType = "root"

// Node is one node of the materialized story graph.
type Node struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	SequentialOrder *int    `json:"sequential_order,omitempty"`
	Children        []*Node `json:"children,omitempty"`
}

// SnapshotNode is a child entry in a FlatParentMap.
type SnapshotNode struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	SequentialOrder *int   `json:"sequential_order,omitempty"`
}

// ChildGroup lists the children of one parent, named by type and name.
type ChildGroup struct {
	ParentNodeType string         `json:"parent_node_type"`
	ParentNodeName string         `json:"parent_node_name"`
	Children       []SnapshotNode `json:"children"`
}

// FlatParentMap is the structural snapshot of a story map: children grouped
// by parent. Groups may appear in any order.
type FlatParentMap struct {
	Root   string       `json:"root"`
	Groups []ChildGroup `json:"groups"`
}

// MissingNodePolicy decides what Load does when a group or a replayed
// command names a node that is not in the graph.
type MissingNodePolicy int

const (
	// SkipMissing drops the group or command and logs it at debug level.
	SkipMissing MissingNodePolicy = iota
	// FailOnMissing aborts Load with ErrCodeNodeNotFound.
	FailOnMissing
)

func (p MissingNodePolicy) String() string {
	if p == FailOnMissing {
		return "fail"
	}
	return "skip"
}

// ParseMissingNodePolicy accepts "skip" and "fail".
func ParseMissingNodePolicy(s string) (MissingNodePolicy, error) {
	switch s {
	case "", "skip":
		return SkipMissing, nil
	case "fail":
		return FailOnMissing, nil
	}
	return SkipMissing, errors.New(errors.ErrCodeInvalidInput,
		fmt.Sprintf("unknown missing node policy %q", s))
}

// Updater materializes the story graph from a snapshot plus the commands
// the worker has confirmed since.
type Updater struct {
	Policy MissingNodePolicy
	Logger *logrus.Entry
}

// NewUpdater returns an Updater using policy.
func NewUpdater(policy MissingNodePolicy, logger *logrus.Entry) *Updater {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Updater{Policy: policy, Logger: logger}
}

// Load builds the tree described by flat, then replays every persisted
// command in executed. Groups whose parent has not been attached yet are
// retried until a pass makes no progress, so group order does not matter.
func (u *Updater) Load(flat FlatParentMap, executed []Command) (*Node, error) {
	rootName := flat.Root
	if rootName == "" {
		rootName = "Story Map"
	}
	root := &Node{Name: rootName, Type: RootType}

	remaining := append([]ChildGroup{}, flat.Groups...)
	for len(remaining) > 0 {
		var deferred []ChildGroup
		for _, group := range remaining {
			parent := locateParent(root, group.ParentNodeType, group.ParentNodeName)
			if parent == nil {
				deferred = append(deferred, group)
				continue
			}
			for _, child := range group.Children {
				parent.Children = append(parent.Children, &Node{
					Name:            child.Name,
					Type:            child.Type,
					SequentialOrder: copyInt(child.SequentialOrder),
				})
			}
		}
		if len(deferred) == len(remaining) {
			break
		}
		remaining = deferred
	}

	for _, group := range remaining {
		key := NodeKey{Type: group.ParentNodeType, Name: group.ParentNodeName}
		if err := u.missing("attach children", key, len(group.Children)); err != nil {
			return nil, err
		}
	}

	sortChildren(root)

	for _, cmd := range executed {
		if !cmd.Persisted {
			continue
		}
		if err := u.replay(root, cmd); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func (u *Updater) replay(root *Node, cmd Command) error {
	switch cmd.Type {
	case ChangeMove:
		node := Find(root, cmd.NodeType, cmd.NodeName)
		if node == nil {
			return u.missing("move", cmd.Subject(), 0)
		}
		node.SequentialOrder = copyInt(cmd.TargetPosition)
	case ChangeRename:
		node := Find(root, cmd.NodeType, cmd.OriginalName)
		if node == nil {
			return u.missing("rename", NodeKey{Type: cmd.NodeType, Name: cmd.OriginalName}, 0)
		}
		node.Name = cmd.NewName
	case ChangeDelete:
		if !removeNode(root, cmd.NodeType, cmd.NodeName) {
			return u.missing("delete", cmd.Subject(), 0)
		}
	case ChangeCreate:
		parent := locateParent(root, cmd.ParentNodeType, cmd.ParentNodeName)
		if parent == nil {
			return u.missing("create under", cmd.Parent(), 0)
		}
		parent.Children = append(parent.Children, &Node{
			Name:            cmd.NewNodeName,
			Type:            cmd.NodeType,
			SequentialOrder: copyInt(cmd.NodePosition),
		})
	}
	return nil
}

func (u *Updater) missing(action string, key NodeKey, children int) error {
	if u.Policy == FailOnMissing {
		return errors.NodeNotFound(key.Type, key.Name).WithDetail("action", action)
	}
	fields := logrus.Fields{"action": action, "node": key.String()}
	if children > 0 {
		fields["children"] = children
	}
	u.Logger.WithFields(fields).Debug("Skipping missing node")
	return nil
}

// Find returns the first node with the given type and name in depth-first
// order, or nil. Names are assumed unique per type; with duplicates the
// first in child order wins.
func Find(root *Node, nodeType, name string) *Node {
	if root == nil {
		return nil
	}
	if root.Type == nodeType && root.Name == name {
		return root
	}
	for _, child := range root.Children {
		if found := Find(child, nodeType, name); found != nil {
			return found
		}
	}
	return nil
}

// Flatten converts a tree back into a FlatParentMap. Load(Flatten(t), nil)
// rebuilds t.
func Flatten(root *Node) FlatParentMap {
	flat := FlatParentMap{}
	if root == nil {
		return flat
	}
	flat.Root = root.Name

	var walk func(n *Node)
	walk = func(n *Node) {
		if len(n.Children) == 0 {
			return
		}
		group := ChildGroup{ParentNodeType: n.Type, ParentNodeName: n.Name}
		for _, child := range n.Children {
			group.Children = append(group.Children, SnapshotNode{
				Name:            child.Name,
				Type:            child.Type,
				SequentialOrder: copyInt(child.SequentialOrder),
			})
		}
		flat.Groups = append(flat.Groups, group)
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return flat
}

// Count returns the number of nodes in the tree, root included.
func Count(root *Node) int {
	if root == nil {
		return 0
	}
	n := 1
	for _, child := range root.Children {
		n += Count(child)
	}
	return n
}

func locateParent(root *Node, parentType, parentName string) *Node {
	if parentType == RootType {
		return root
	}
	return Find(root, parentType, parentName)
}

func removeNode(parent *Node, nodeType, name string) bool {
	for i, child := range parent.Children {
		if child.Type == nodeType && child.Name == name {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return true
		}
		if removeNode(child, nodeType, name) {
			return true
		}
	}
	return false
}

// sortChildren orders siblings by sequential_order; unordered nodes keep
// their snapshot order after the ordered ones.
func sortChildren(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i].SequentialOrder, n.Children[j].SequentialOrder
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a < *b
	})
	for _, child := range n.Children {
		sortChildren(child)
	}
}
