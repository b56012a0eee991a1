package workitem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
)

// QuickValidate checks just the given items: do they exist, do their parent
// and dependency edges point at real items, and does any dependency loop
// back. Empty refs validates nothing and reports valid.
func (e *Engine) QuickValidate(ctx context.Context, store *storage.Store, refs []string) (*ValidationReport, error) {
	report := &ValidationReport{IsValid: true}
	for _, ref := range refs {
		item, err := e.Resolve(store, ref)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				report.InvalidReferences = append(report.InvalidReferences, InvalidRef{
					ItemID: ref, Field: "work_item_id", Target: ref,
				})
				report.IsValid = false
				continue
			}
			return nil, err
		}
		report.CheckedCount++

		if item.ParentID != nil {
			if _, err := store.GetWorkItem(*item.ParentID); errors.Is(err, storage.ErrWorkItemNotFound) {
				report.Orphans = append(report.Orphans, item.ID)
				report.IsValid = false
			}
		}
		for _, dep := range item.Dependencies {
			if dep == item.ID {
				report.Cycles = append(report.Cycles, []string{item.ID, item.ID})
				report.IsValid = false
				continue
			}
			if _, err := store.GetWorkItem(dep); errors.Is(err, storage.ErrWorkItemNotFound) {
				report.InvalidReferences = append(report.InvalidReferences, InvalidRef{
					ItemID: item.ID, Field: "dependencies", Target: dep,
				})
				report.IsValid = false
				continue
			}
			back, err := e.reaches(store, dep, item.ID)
			if err != nil {
				return nil, err
			}
			if back {
				report.Cycles = append(report.Cycles, []string{item.ID, dep})
				report.IsValid = false
			}
		}
	}
	return report, nil
}

// ValidateHierarchy sweeps the whole namespace: orphaned children, broken
// dependency references, cycles across the combined parent and dependency
// graph, and chains deeper than the recommended maximum. Depth warnings do
// not make the report invalid.
func (e *Engine) ValidateHierarchy(ctx context.Context, store *storage.Store) (*ValidationReport, error) {
	items, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.WorkItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	report := &ValidationReport{IsValid: true, CheckedCount: len(items)}
	report.Orphans = orphanIDs(items, byID)

	for _, item := range items {
		if item.ParentID != nil {
			if _, ok := byID[*item.ParentID]; !ok {
				report.InvalidReferences = append(report.InvalidReferences, InvalidRef{
					ItemID: item.ID, Field: "parent_id", Target: *item.ParentID,
				})
			}
		}
		for _, dep := range item.Dependencies {
			if _, ok := byID[dep]; !ok {
				report.InvalidReferences = append(report.InvalidReferences, InvalidRef{
					ItemID: item.ID, Field: "dependencies", Target: dep,
				})
			}
		}
	}

	report.Cycles = findCycles(byID)

	for _, item := range items {
		depth := 0
		node := item
		hops := map[string]bool{}
		for node.ParentID != nil && !hops[node.ID] {
			hops[node.ID] = true
			parent, ok := byID[*node.ParentID]
			if !ok {
				break
			}
			depth++
			node = parent
		}
		if depth > model.MaxHierarchyDepth {
			report.DepthWarnings = append(report.DepthWarnings, DepthWarning{ItemID: item.ID, Depth: depth})
		}
	}

	if len(report.Orphans) > 0 || len(report.Cycles) > 0 || len(report.InvalidReferences) > 0 {
		report.IsValid = false
	}
	return report, nil
}

// orphanIDs returns the ids whose ancestor chain never reaches a parentless
// root, either because a parent id is dangling or because the chain loops.
func orphanIDs(items []*model.WorkItem, byID map[string]*model.WorkItem) []string {
	var out []string
	for _, item := range items {
		node := item
		visited := map[string]bool{}
		for {
			if node.ParentID == nil {
				break
			}
			if visited[node.ID] {
				out = append(out, item.ID)
				break
			}
			visited[node.ID] = true
			parent, ok := byID[*node.ParentID]
			if !ok {
				out = append(out, item.ID)
				break
			}
			node = parent
		}
	}
	return out
}

// findCycles walks the combined parent and dependency edges of every item
// and returns each distinct cycle once, as the id path around the loop.
func findCycles(byID map[string]*model.WorkItem) [][]string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(byID))
	var cycles [][]string
	seenCycle := map[string]bool{}

	var path []string
	onPath := map[string]int{}

	edges := func(item *model.WorkItem) []string {
		out := append([]string(nil), item.Dependencies...)
		if item.ParentID != nil {
			out = append(out, *item.ParentID)
		}
		return out
	}

	var visit func(id string)
	visit = func(id string) {
		item, ok := byID[id]
		if !ok {
			return
		}
		color[id] = grey
		onPath[id] = len(path)
		path = append(path, id)

		for _, next := range edges(item) {
			switch color[next] {
			case white:
				visit(next)
			case grey:
				start := onPath[next]
				cycle := append([]string(nil), path[start:]...)
				cycle = append(cycle, next)
				if key := cycleKey(cycle); !seenCycle[key] {
					seenCycle[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		path = path[:len(path)-1]
		delete(onPath, id)
		color[id] = black
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// cycleKey builds a rotation-independent identity for a cycle path.
func cycleKey(cycle []string) string {
	if len(cycle) < 2 {
		return strings.Join(cycle, ">")
	}
	loop := cycle[:len(cycle)-1]
	min := 0
	for i := range loop {
		if loop[i] < loop[min] {
			min = i
		}
	}
	rotated := append(append([]string(nil), loop[min:]...), loop[:min]...)
	return strings.Join(rotated, ">")
}

// CleanupOrphans repairs items whose parent no longer exists. move_to_root
// detaches them, delete removes them, assign_parent reattaches them under
// newParent.
func (e *Engine) CleanupOrphans(ctx context.Context, store *storage.Store, action CleanupAction, newParent string) ([]CleanupOutcome, error) {
	items, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.WorkItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	var adopter *model.WorkItem
	if action == CleanupAssignParent {
		adopter, err = e.Resolve(store, newParent)
		if err != nil {
			return nil, err
		}
	}

	// Repair only the broken edge itself: the item whose parent id dangles,
	// or an item sitting on a parent cycle. Items hanging below become valid
	// once the top is reattached.
	targets := map[string]bool{}
	for _, item := range items {
		if item.ParentID == nil {
			continue
		}
		if _, ok := byID[*item.ParentID]; !ok {
			targets[item.ID] = true
			continue
		}
		node := item
		visited := map[string]bool{}
		for node.ParentID != nil && !visited[node.ID] {
			visited[node.ID] = true
			parent, ok := byID[*node.ParentID]
			if !ok {
				break
			}
			if parent.ID == item.ID {
				targets[item.ID] = true
				break
			}
			node = parent
		}
	}

	var outcomes []CleanupOutcome
	for _, item := range items {
		if !targets[item.ID] {
			continue
		}

		outcome := CleanupOutcome{ItemID: item.ID, Action: string(action), Success: true}
		switch action {
		case CleanupDelete:
			if err := store.DeleteWorkItem(item.ID); err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
			}
		case CleanupMoveToRoot:
			fixed := item.Clone()
			fixed.ParentID = nil
			if err := e.assignSequence(store, fixed, nil); err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
				break
			}
			fixed.UpdatedAt = bumpAfter(item.UpdatedAt)
			if err := store.ReplaceWorkItem(fixed); err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
			}
		case CleanupAssignParent:
			if !model.CanContain(adopter.ItemType, item.ItemType) {
				outcome.Success = false
				outcome.Error = fmt.Sprintf("%s cannot contain %s", adopter.ItemType, item.ItemType)
				break
			}
			fixed := item.Clone()
			pid := adopter.ID
			fixed.ParentID = &pid
			if err := e.assignSequence(store, fixed, adopter); err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
				break
			}
			fixed.UpdatedAt = bumpAfter(item.UpdatedAt)
			if err := store.ReplaceWorkItem(fixed); err != nil {
				outcome.Success = false
				outcome.Error = err.Error()
			}
		default:
			outcome.Success = false
			outcome.Error = fmt.Sprintf("unknown cleanup action %q", action)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
