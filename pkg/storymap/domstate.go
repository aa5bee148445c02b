package storymap

// OptimisticUpdate is a change as already applied to the local view.
type OptimisticUpdate struct {
	ChangeID string     `json:"change_id"`
	Type     ChangeType `json:"type"`

	NodeType       string `json:"node_type"`
	NodeName       string `json:"node_name"`
	NewName        string `json:"new_name,omitempty"`
	TargetPosition *int   `json:"target_position,omitempty"`
	ParentNodeType string `json:"parent_node_type,omitempty"`
	ParentNodeName string `json:"parent_node_name,omitempty"`
}

// Rollback undoes one optimistic update. Node is the node as it appears in
// the view after the update; RestoreValue is the name or state to restore.
type Rollback struct {
	ChangeID string     `json:"change_id"`
	Type     ChangeType `json:"type"`

	Node             NodeKey `json:"node"`
	RestoreValue     string  `json:"restore_value,omitempty"`
	OriginalPosition *int    `json:"original_position,omitempty"`
	OriginalParent   NodeKey `json:"original_parent,omitempty"`
}

// DOMState is the set of optimistic updates the view currently shows, and
// the rollbacks that would undo them. Callers receive copies.
type DOMState struct {
	OptimisticUpdates []OptimisticUpdate `json:"optimistic_updates"`
	Rollbacks         []Rollback         `json:"rollbacks"`
}

// HasUpdate reports whether the view still shows the change.
func (s DOMState) HasUpdate(changeID string) bool {
	for _, u := range s.OptimisticUpdates {
		if u.ChangeID == changeID {
			return true
		}
	}
	return false
}

// projectChange returns the optimistic update and its rollback.
func projectChange(c Change) (OptimisticUpdate, Rollback) {
	update := OptimisticUpdate{
		ChangeID:       c.ID,
		Type:           c.Type,
		NodeType:       c.NodeType,
		NodeName:       c.NodeName,
		ParentNodeType: c.ParentNodeType,
		ParentNodeName: c.ParentNodeName,
	}
	rollback := Rollback{
		ChangeID: c.ID,
		Type:     c.Type,
		Node:     c.Subject(),
	}

	switch c.Type {
	case ChangeMove:
		update.TargetPosition = copyInt(c.TargetPosition)
		rollback.OriginalPosition = copyInt(c.OriginalPosition)
	case ChangeRename:
		update.NewName = c.NewName
		rollback.Node = NodeKey{Type: c.NodeType, Name: c.NewName}
		rollback.RestoreValue = c.OriginalName
	case ChangeDelete:
		rollback.RestoreValue = c.NodeName
		rollback.OriginalPosition = copyInt(c.OriginalPosition)
		rollback.OriginalParent = c.Parent()
	case ChangeCreate:
		update.NodeName = c.NewNodeName
		update.TargetPosition = copyInt(c.NodePosition)
		rollback.Node = NodeKey{Type: c.NodeType, Name: c.NewNodeName}
		rollback.OriginalParent = c.Parent()
	}
	return update, rollback
}

// domState is the queue-owned mutable form of DOMState.
type domState struct {
	updates   []OptimisticUpdate
	rollbacks []Rollback
}

func (d *domState) apply(c Change) {
	update, rollback := projectChange(c)
	d.updates = append(d.updates, update)
	d.rollbacks = append(d.rollbacks, rollback)
}

// rollback executes the rollback for changeID: the descriptor is consumed
// and the matching optimistic update removed. It returns false if the
// change was already rolled back.
func (d *domState) rollback(changeID string) (Rollback, bool) {
	idx := -1
	for i, r := range d.rollbacks {
		if r.ChangeID == changeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Rollback{}, false
	}
	rb := d.rollbacks[idx]
	d.rollbacks = append(d.rollbacks[:idx], d.rollbacks[idx+1:]...)

	for i, u := range d.updates {
		if u.ChangeID == changeID {
			d.updates = append(d.updates[:i], d.updates[i+1:]...)
			break
		}
	}
	return rb, true
}

func (d *domState) snapshot() DOMState {
	return DOMState{
		OptimisticUpdates: append([]OptimisticUpdate{}, d.updates...),
		Rollbacks:         append([]Rollback{}, d.rollbacks...),
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	return intPtr(*p)
}
