package workitem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
)

// Children returns direct children in sibling order.
func (e *Engine) Children(ctx context.Context, store *storage.Store, ref string) ([]*model.WorkItem, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	return store.ListWorkItems(storage.ListOptions{Where: storage.Eq("parent_id", item.ID)})
}

// Ancestors walks parent edges from ref up to the root, nearest first.
func (e *Engine) Ancestors(ctx context.Context, store *storage.Store, ref string) ([]*model.WorkItem, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	var chain []*model.WorkItem
	seen := map[string]bool{item.ID: true}
	for item.ParentID != nil {
		parent, err := store.GetWorkItem(*item.ParentID)
		if errors.Is(err, storage.ErrWorkItemNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		chain = append(chain, parent)
		item = parent
	}
	return chain, nil
}

// Descendants returns every item below ref as a flat list, breadth-first.
func (e *Engine) Descendants(ctx context.Context, store *storage.Store, ref string) ([]*model.WorkItem, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	var out []*model.WorkItem
	seen := map[string]bool{item.ID: true}
	queue := []string{item.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := store.ListWorkItems(storage.ListOptions{Where: storage.Eq("parent_id", id)})
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// FullHierarchy builds the subtree under ref (or every root when ref is
// empty) as nested nodes. maxDepth 0 means unlimited; filter drops completed
// or cancelled subtrees when asked.
func (e *Engine) FullHierarchy(ctx context.Context, store *storage.Store, ref string, maxDepth int, filter HierarchyFilter) ([]*TreeNode, error) {
	var roots []*model.WorkItem
	if ref == "" {
		var err error
		roots, err = store.ListWorkItems(storage.ListOptions{Where: storage.IsNull("parent_id")})
		if err != nil {
			return nil, err
		}
	} else {
		item, err := e.Resolve(store, ref)
		if err != nil {
			return nil, err
		}
		roots = []*model.WorkItem{item}
	}

	seen := map[string]bool{}
	var build func(item *model.WorkItem, depth int) (*TreeNode, error)
	build = func(item *model.WorkItem, depth int) (*TreeNode, error) {
		if seen[item.ID] {
			return nil, nil
		}
		seen[item.ID] = true
		if depth > model.MaxHierarchyDepth {
			logger.Warn("hierarchy depth %d at %s exceeds %d", depth, item.ID, model.MaxHierarchyDepth)
		}
		node := &TreeNode{Item: item, Depth: depth}
		if maxDepth > 0 && depth >= maxDepth {
			return node, nil
		}
		children, err := store.ListWorkItems(storage.ListOptions{Where: storage.Eq("parent_id", item.ID)})
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if !filter.keeps(child) {
				continue
			}
			sub, err := build(child, depth+1)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				node.Children = append(node.Children, sub)
			}
		}
		return node, nil
	}

	var out []*TreeNode
	for _, root := range roots {
		if !filter.keeps(root) {
			continue
		}
		node, err := build(root, 0)
		if err != nil {
			return nil, err
		}
		if node != nil {
			out = append(out, node)
		}
	}
	return out, nil
}

// Dependencies returns the items ref depends on, in stored order. Broken
// references come back in the second list instead of failing the call.
func (e *Engine) Dependencies(ctx context.Context, store *storage.Store, ref string) ([]*model.WorkItem, []string, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, nil, err
	}
	var deps []*model.WorkItem
	var missing []string
	for _, id := range item.Dependencies {
		dep, err := store.GetWorkItem(id)
		if errors.Is(err, storage.ErrWorkItemNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		deps = append(deps, dep)
	}
	return deps, missing, nil
}

// Dependents returns the items that list ref as a dependency.
func (e *Engine) Dependents(ctx context.Context, store *storage.Store, ref string) ([]*model.WorkItem, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	all, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	var out []*model.WorkItem
	for _, other := range all {
		if other.ID != item.ID && other.HasDependency(item.ID) {
			out = append(out, other)
		}
	}
	return out, nil
}

// AddDependency records that src depends on tgt. The combined graph of
// parent and dependency edges must stay acyclic, so the edge is refused when
// tgt already reaches src through any mix of the two.
func (e *Engine) AddDependency(ctx context.Context, store *storage.Store, srcRef, tgtRef string) (*model.WorkItem, error) {
	src, err := e.Resolve(store, srcRef)
	if err != nil {
		return nil, err
	}
	tgt, err := e.Resolve(store, tgtRef)
	if err != nil {
		return nil, err
	}
	if src.ID == tgt.ID {
		return nil, fmt.Errorf("%w: item cannot depend on itself", ErrCircularDependency)
	}
	if src.HasDependency(tgt.ID) {
		return src, nil
	}

	reaches, err := e.reaches(store, tgt.ID, src.ID)
	if err != nil {
		return nil, err
	}
	if reaches {
		return nil, fmt.Errorf("%w: %s already reaches %s", ErrCircularDependency, tgt.ID, src.ID)
	}

	updated := src.Clone()
	updated.Dependencies = append(updated.Dependencies, tgt.ID)
	updated.UpdatedAt = bumpAfter(src.UpdatedAt)
	if err := store.ReplaceWorkItem(updated); err != nil {
		return nil, fmt.Errorf("failed to add dependency: %w", err)
	}
	return updated, nil
}

// RemoveDependency drops tgt from src's dependency list. Removing an absent
// edge is a no-op.
func (e *Engine) RemoveDependency(ctx context.Context, store *storage.Store, srcRef, tgtRef string) (*model.WorkItem, error) {
	src, err := e.Resolve(store, srcRef)
	if err != nil {
		return nil, err
	}
	tgt, err := e.Resolve(store, tgtRef)
	if err != nil {
		// Tolerate a dangling id so broken edges can still be cleaned up.
		tgt = &model.WorkItem{ID: tgtRef}
	}
	if !src.HasDependency(tgt.ID) {
		return src, nil
	}

	updated := src.Clone()
	updated.Dependencies = updated.Dependencies[:0]
	for _, id := range src.Dependencies {
		if id != tgt.ID {
			updated.Dependencies = append(updated.Dependencies, id)
		}
	}
	updated.UpdatedAt = bumpAfter(src.UpdatedAt)
	if err := store.ReplaceWorkItem(updated); err != nil {
		return nil, fmt.Errorf("failed to remove dependency: %w", err)
	}
	return updated, nil
}

// isDescendant reports whether nodeID sits in the subtree rooted at rootID.
func (e *Engine) isDescendant(store *storage.Store, nodeID, rootID string) (bool, error) {
	node, err := store.GetWorkItem(nodeID)
	if errors.Is(err, storage.ErrWorkItemNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	seen := map[string]bool{}
	for node.ParentID != nil && !seen[node.ID] {
		seen[node.ID] = true
		if *node.ParentID == rootID {
			return true, nil
		}
		parent, err := store.GetWorkItem(*node.ParentID)
		if err != nil {
			return false, nil
		}
		node = parent
	}
	return false, nil
}

// reaches reports whether from can reach to by following dependency edges
// and parent edges in either role (child to parent).
func (e *Engine) reaches(store *storage.Store, from, to string) (bool, error) {
	seen := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true, nil
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		item, err := store.GetWorkItem(id)
		if errors.Is(err, storage.ErrWorkItemNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		stack = append(stack, item.Dependencies...)
		if item.ParentID != nil {
			stack = append(stack, *item.ParentID)
		}
	}
	return false, nil
}

func bumpAfter(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
