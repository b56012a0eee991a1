package workitem

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
)

// Reorder puts the listed items first, in the given order, among their
// shared sibling list. Unlisted siblings keep their relative order after
// them. All listed items must share one parent; parentRef, when set, must be
// that parent.
func (e *Engine) Reorder(ctx context.Context, store *storage.Store, refs []string, parentRef *string) ([]*model.WorkItem, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no work items to reorder", ErrInvalidInput)
	}

	listed := make([]*model.WorkItem, 0, len(refs))
	listedSet := map[string]bool{}
	for _, ref := range refs {
		item, err := e.Resolve(store, ref)
		if err != nil {
			return nil, err
		}
		if listedSet[item.ID] {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidInput, item.ID)
		}
		listedSet[item.ID] = true
		listed = append(listed, item)
	}

	parentKey := listed[0].Parent()
	for _, item := range listed[1:] {
		if item.Parent() != parentKey {
			return nil, fmt.Errorf("%w: items span multiple parents", ErrInvalidHierarchy)
		}
	}

	var parent *model.WorkItem
	if parentKey != "" {
		var err error
		parent, err = store.GetWorkItem(parentKey)
		if err != nil {
			return nil, fmt.Errorf("%w: parent %s", ErrNotFound, parentKey)
		}
	}
	if parentRef != nil && *parentRef != "" {
		want, err := e.Resolve(store, *parentRef)
		if err != nil {
			return nil, err
		}
		if want.ID != parentKey {
			return nil, fmt.Errorf("%w: items do not belong to %s", ErrInvalidHierarchy, want.ID)
		}
	}

	siblings, err := e.siblingsOf(store, parentKey)
	if err != nil {
		return nil, err
	}

	ordered := make([]*model.WorkItem, 0, len(siblings))
	ordered = append(ordered, listed...)
	for _, s := range siblings {
		if !listedSet[s.ID] {
			ordered = append(ordered, s)
		}
	}

	if err := e.applySiblingOrder(store, parent, ordered); err != nil {
		return nil, err
	}
	return e.siblingsOf(store, parentKey)
}

// Move reparents ref under newParentRef (empty means top level) and inserts
// it at position among its new siblings; -1 appends. Both the old and the
// new sibling lists are renumbered.
func (e *Engine) Move(ctx context.Context, store *storage.Store, ref string, newParentRef *string, position int) (*model.WorkItem, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	oldParentKey := item.Parent()

	var parent *model.WorkItem
	parentKey := ""
	if newParentRef != nil && *newParentRef != "" {
		parent, err = e.Resolve(store, *newParentRef)
		if err != nil {
			return nil, err
		}
		if parent.ID == item.ID {
			return nil, fmt.Errorf("%w: item cannot be its own parent", ErrInvalidHierarchy)
		}
		if !model.CanContain(parent.ItemType, item.ItemType) {
			return nil, fmt.Errorf("%w: %s cannot contain %s", ErrInvalidHierarchy, parent.ItemType, item.ItemType)
		}
		under, err := e.isDescendant(store, parent.ID, item.ID)
		if err != nil {
			return nil, err
		}
		if under {
			return nil, fmt.Errorf("%w: cannot move an item under its own descendant", ErrInvalidHierarchy)
		}
		parentKey = parent.ID
	}

	moved := item.Clone()
	if parentKey == "" {
		moved.ParentID = nil
	} else {
		moved.ParentID = &parentKey
	}
	moved.UpdatedAt = bumpAfter(item.UpdatedAt)
	if err := store.ReplaceWorkItem(moved); err != nil {
		return nil, fmt.Errorf("failed to move %s: %w", item.ID, err)
	}

	siblings, err := e.siblingsOf(store, parentKey)
	if err != nil {
		return nil, err
	}
	ordered := make([]*model.WorkItem, 0, len(siblings))
	var self *model.WorkItem
	for _, s := range siblings {
		if s.ID == moved.ID {
			self = s
			continue
		}
		ordered = append(ordered, s)
	}
	if self == nil {
		return nil, fmt.Errorf("move verification failed for %s", item.ID)
	}
	if position < 0 || position >= len(ordered) {
		ordered = append(ordered, self)
	} else {
		ordered = append(ordered[:position], append([]*model.WorkItem{self}, ordered[position:]...)...)
	}
	if err := e.applySiblingOrder(store, parent, ordered); err != nil {
		return nil, err
	}

	if oldParentKey != parentKey {
		if err := e.renumberSiblings(store, oldParentKey); err != nil {
			return nil, err
		}
	}
	return store.GetWorkItem(item.ID)
}

// Swap exchanges the outline positions of two items under the same parent.
func (e *Engine) Swap(ctx context.Context, store *storage.Store, aRef, bRef string) ([]*model.WorkItem, error) {
	a, err := e.Resolve(store, aRef)
	if err != nil {
		return nil, err
	}
	b, err := e.Resolve(store, bRef)
	if err != nil {
		return nil, err
	}
	if a.ID == b.ID {
		return nil, fmt.Errorf("%w: cannot swap an item with itself", ErrInvalidInput)
	}
	if a.Parent() != b.Parent() {
		return nil, fmt.Errorf("%w: items have different parents", ErrInvalidHierarchy)
	}

	newA := a.Clone()
	newB := b.Clone()
	newA.SequenceNumber, newB.SequenceNumber = b.SequenceNumber, a.SequenceNumber
	newA.OrderIndex, newB.OrderIndex = b.OrderIndex, a.OrderIndex
	newA.UpdatedAt = bumpAfter(a.UpdatedAt)
	newB.UpdatedAt = bumpAfter(b.UpdatedAt)

	if err := store.ReplaceWorkItem(newA); err != nil {
		return nil, fmt.Errorf("failed to swap %s: %w", a.ID, err)
	}
	if err := store.ReplaceWorkItem(newB); err != nil {
		return nil, fmt.Errorf("failed to swap %s: %w", b.ID, err)
	}
	if err := e.renumberSubtree(store, newA); err != nil {
		return nil, err
	}
	if err := e.renumberSubtree(store, newB); err != nil {
		return nil, err
	}
	return []*model.WorkItem{newA, newB}, nil
}

// siblingsOf lists the children of parentKey ("" means the roots) in
// current outline order.
func (e *Engine) siblingsOf(store *storage.Store, parentKey string) ([]*model.WorkItem, error) {
	pred := storage.IsNull("parent_id")
	if parentKey != "" {
		pred = storage.Eq("parent_id", parentKey)
	}
	return store.ListWorkItems(storage.ListOptions{Where: pred})
}

// applySiblingOrder writes positions 1..n onto ordered and renumbers any
// moved subtrees.
func (e *Engine) applySiblingOrder(store *storage.Store, parent *model.WorkItem, ordered []*model.WorkItem) error {
	for pos, item := range ordered {
		seq := strconv.Itoa(pos + 1)
		order := int64(pos + 1)
		if parent != nil {
			seq = fmt.Sprintf("%s.%d", parent.SequenceNumber, pos+1)
			order = parent.OrderIndex*orderStride + int64(pos+1)
		}
		if item.SequenceNumber == seq && item.OrderIndex == order {
			continue
		}
		updated := item.Clone()
		updated.SequenceNumber = seq
		updated.OrderIndex = order
		updated.UpdatedAt = bumpAfter(item.UpdatedAt)
		if err := store.ReplaceWorkItem(updated); err != nil {
			return fmt.Errorf("failed to renumber %s: %w", item.ID, err)
		}
		if err := e.renumberSubtree(store, updated); err != nil {
			return err
		}
	}
	return nil
}

// renumberSiblings reapplies positional order to the children of parentKey.
func (e *Engine) renumberSiblings(store *storage.Store, parentKey string) error {
	var parent *model.WorkItem
	if parentKey != "" {
		var err error
		parent, err = store.GetWorkItem(parentKey)
		if err != nil {
			return nil
		}
	}
	siblings, err := e.siblingsOf(store, parentKey)
	if err != nil {
		return err
	}
	return e.applySiblingOrder(store, parent, siblings)
}

// renumberSubtree rewrites descendant labels so they extend root's current
// label, preserving sibling order.
func (e *Engine) renumberSubtree(store *storage.Store, root *model.WorkItem) error {
	children, err := store.ListWorkItems(storage.ListOptions{Where: storage.Eq("parent_id", root.ID)})
	if err != nil {
		return err
	}
	for pos, child := range children {
		seq := fmt.Sprintf("%s.%d", root.SequenceNumber, pos+1)
		order := root.OrderIndex*orderStride + int64(pos+1)
		next := child
		if child.SequenceNumber != seq || child.OrderIndex != order {
			updated := child.Clone()
			updated.SequenceNumber = seq
			updated.OrderIndex = order
			updated.UpdatedAt = bumpAfter(child.UpdatedAt)
			if err := store.ReplaceWorkItem(updated); err != nil {
				return fmt.Errorf("failed to renumber %s: %w", child.ID, err)
			}
			next = updated
		}
		if err := e.renumberSubtree(store, next); err != nil {
			return err
		}
	}
	return nil
}
