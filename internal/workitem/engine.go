// Package workitem implements the hierarchy engine: CRUD with sequence
// numbers, parent/child and dependency graphs, reordering, validation, and
// progress rollup over a namespace store.
package workitem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
)

// Engine executes work-item operations against whichever namespace store a
// caller hands it. The engine itself is stateless; one instance serves every
// namespace.
type Engine struct {
	embedder embedding.Embedder
	validate *validator.Validate
}

// NewEngine builds an engine around the given embedder.
func NewEngine(embedder embedding.Embedder) *Engine {
	return &Engine{
		embedder: embedder,
		validate: validator.New(),
	}
}

// Create fills defaults, assigns the sequence number, computes the vector,
// and persists a new item.
func (e *Engine) Create(ctx context.Context, store *storage.Store, req CreateRequest) (*model.WorkItem, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, req.Type)
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, req.Status)
	}
	if req.Priority != "" && !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, req.Priority)
	}

	now := time.Now().UTC()
	item := &model.WorkItem{
		ID:                 uuid.New().String(),
		ItemType:           req.Type,
		Title:              strings.TrimSpace(req.Title),
		Description:        req.Description,
		Status:             model.StatusNotStarted,
		Priority:           model.PriorityMedium,
		Dependencies:       []string{},
		Tags:               []string{},
		AcceptanceCriteria: []string{},
		Metadata:           "{}",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.Status != "" {
		item.Status = req.Status
	}
	if req.Priority != "" {
		item.Priority = req.Priority
	}
	if req.Tags != nil {
		item.Tags = req.Tags
	}
	if req.AcceptanceCriteria != nil {
		item.AcceptanceCriteria = req.AcceptanceCriteria
	}
	if req.Metadata != "" {
		item.Metadata = req.Metadata
	}
	if req.Progress != nil {
		item.ProgressPercentage = model.ClampProgress(*req.Progress)
	}
	if item.Status == model.StatusCompleted {
		item.ProgressPercentage = 100
		item.CompletedAt = &now
	}

	var parent *model.WorkItem
	if req.ParentID != nil && *req.ParentID != "" {
		var err error
		parent, err = store.GetWorkItem(*req.ParentID)
		if errors.Is(err, storage.ErrWorkItemNotFound) {
			return nil, fmt.Errorf("%w: parent %s", ErrNotFound, *req.ParentID)
		}
		if err != nil {
			return nil, err
		}
		if !model.CanContain(parent.ItemType, item.ItemType) {
			return nil, fmt.Errorf("%w: %s cannot contain %s", ErrInvalidHierarchy, parent.ItemType, item.ItemType)
		}
		pid := parent.ID
		item.ParentID = &pid
	}

	for _, dep := range req.Dependencies {
		if _, err := store.GetWorkItem(dep); err != nil {
			return nil, fmt.Errorf("%w: dependency %s", ErrNotFound, dep)
		}
		item.Dependencies = append(item.Dependencies, dep)
	}

	if err := e.assignSequence(store, item, parent); err != nil {
		return nil, err
	}

	e.embedInto(ctx, item)

	if err := store.AddWorkItem(item); err != nil {
		return nil, fmt.Errorf("failed to persist work item: %w", err)
	}

	if item.ProgressPercentage > 0 || item.Status != model.StatusNotStarted {
		e.rollupAncestors(store, item)
	}
	return item, nil
}

// Update merges req into the stored item, renumbers on reparenting,
// recomputes the vector on text changes, applies status side effects, and
// rewrites the row. The write is verified by re-reading.
func (e *Engine) Update(ctx context.Context, store *storage.Store, req UpdateRequest) (*model.WorkItem, error) {
	current, err := e.Resolve(store, req.Ref)
	if err != nil {
		return nil, err
	}

	item := current.Clone()
	textChanged := false
	progressChanged := false
	statusChanged := false

	if req.Title != nil && *req.Title != item.Title {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
		}
		item.Title = strings.TrimSpace(*req.Title)
		textChanged = true
	}
	if req.Description != nil && *req.Description != item.Description {
		item.Description = *req.Description
		textChanged = true
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *req.Priority)
		}
		item.Priority = *req.Priority
	}
	if req.Tags != nil {
		item.Tags = *req.Tags
	}
	if req.AcceptanceCriteria != nil {
		item.AcceptanceCriteria = *req.AcceptanceCriteria
	}
	if req.Metadata != nil {
		item.Metadata = *req.Metadata
	}
	if req.Dependencies != nil {
		for _, dep := range *req.Dependencies {
			if dep == item.ID {
				return nil, fmt.Errorf("%w: item cannot depend on itself", ErrCircularDependency)
			}
			if _, err := store.GetWorkItem(dep); err != nil {
				return nil, fmt.Errorf("%w: dependency %s", ErrNotFound, dep)
			}
			if item.HasDependency(dep) {
				continue
			}
			// Same acyclicity rule as AddDependency: the edge is refused
			// when dep already reaches this item through parent or
			// dependency edges.
			reaches, err := e.reaches(store, dep, item.ID)
			if err != nil {
				return nil, err
			}
			if reaches {
				return nil, fmt.Errorf("%w: %s already reaches %s", ErrCircularDependency, dep, item.ID)
			}
		}
		item.Dependencies = *req.Dependencies
	}

	if req.ParentID != nil && *req.ParentID != item.Parent() {
		if err := e.reparent(store, item, *req.ParentID); err != nil {
			return nil, err
		}
	}

	if req.Status != nil && *req.Status != item.Status {
		if !req.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *req.Status)
		}
		item.Status = *req.Status
		statusChanged = true
	}
	if req.Progress != nil {
		p := model.ClampProgress(*req.Progress)
		if p != item.ProgressPercentage {
			item.ProgressPercentage = p
			progressChanged = true
		}
	}

	applyStatusEffects(item, req, progressChanged, statusChanged)

	if textChanged {
		e.embedInto(ctx, item)
	}

	item.UpdatedAt = time.Now().UTC()
	if !item.UpdatedAt.After(current.UpdatedAt) {
		item.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}

	if err := store.ReplaceWorkItem(item); err != nil {
		return nil, fmt.Errorf("failed to rewrite work item: %w", err)
	}
	verified, err := store.GetWorkItem(item.ID)
	if err != nil {
		return nil, fmt.Errorf("rewrite verification failed: %w", err)
	}
	if !verified.UpdatedAt.Equal(item.UpdatedAt) {
		return nil, fmt.Errorf("rewrite verification failed: stale updated_at for %s", item.ID)
	}

	if progressChanged || statusChanged {
		e.rollupAncestors(store, verified)
	}
	return verified, nil
}

// applyStatusEffects enforces the status/progress coupling: completed forces
// progress 100 and a completion timestamp; with auto-calculation on (the
// default), a progress write drives the status.
func applyStatusEffects(item *model.WorkItem, req UpdateRequest, progressChanged, statusChanged bool) {
	autoCalc := req.AutoCalculateStatus == nil || *req.AutoCalculateStatus

	if statusChanged && item.Status == model.StatusCompleted {
		item.ProgressPercentage = 100
		now := time.Now().UTC()
		item.CompletedAt = &now
		return
	}
	if statusChanged && item.Status != model.StatusCompleted {
		item.CompletedAt = nil
	}

	if progressChanged && !statusChanged && autoCalc {
		switch {
		case item.ProgressPercentage <= 0:
			item.Status = model.StatusNotStarted
			item.CompletedAt = nil
		case item.ProgressPercentage >= 100:
			item.Status = model.StatusCompleted
			now := time.Now().UTC()
			item.CompletedAt = &now
		default:
			item.Status = model.StatusInProgress
			item.CompletedAt = nil
		}
	}
}

// reparent validates and applies a new parent, renumbering the item at the
// end of its new sibling list. An empty newParent moves the item to the top
// level.
func (e *Engine) reparent(store *storage.Store, item *model.WorkItem, newParent string) error {
	if newParent == "" {
		item.ParentID = nil
		return e.assignSequence(store, item, nil)
	}
	if newParent == item.ID {
		return fmt.Errorf("%w: item cannot be its own parent", ErrInvalidHierarchy)
	}

	parent, err := store.GetWorkItem(newParent)
	if errors.Is(err, storage.ErrWorkItemNotFound) {
		return fmt.Errorf("%w: parent %s", ErrNotFound, newParent)
	}
	if err != nil {
		return err
	}
	if !model.CanContain(parent.ItemType, item.ItemType) {
		return fmt.Errorf("%w: %s cannot contain %s", ErrInvalidHierarchy, parent.ItemType, item.ItemType)
	}

	// The new parent must not sit below the item, or the parent edges loop.
	ancestor := parent
	seen := map[string]bool{}
	for ancestor != nil && !seen[ancestor.ID] {
		if ancestor.ID == item.ID {
			return fmt.Errorf("%w: cannot move an item under its own descendant", ErrInvalidHierarchy)
		}
		seen[ancestor.ID] = true
		if ancestor.ParentID == nil {
			break
		}
		next, err := store.GetWorkItem(*ancestor.ParentID)
		if err != nil {
			break
		}
		ancestor = next
	}

	pid := parent.ID
	item.ParentID = &pid
	return e.assignSequence(store, item, parent)
}

// Delete removes an item. With children=true the whole subtree goes;
// otherwise children stay behind and validation will flag them.
func (e *Engine) Delete(ctx context.Context, store *storage.Store, ref string, children bool) (*DeleteResult, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, err
	}

	ids := []string{item.ID}
	if children {
		subtree, err := e.subtreeIDs(store, item.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, subtree...)
	}

	if _, err := store.DeleteWorkItems(storage.In("id", ids)); err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", item.ID, err)
	}
	return &DeleteResult{DeletedIDs: ids}, nil
}

// Get resolves ref per the identifier rules and returns the item.
func (e *Engine) Get(ctx context.Context, store *storage.Store, ref string) (*model.WorkItem, error) {
	return e.Resolve(store, ref)
}

// List applies filters and pagination; the second return is the unpaginated
// total for the same filters.
func (e *Engine) List(ctx context.Context, store *storage.Store, req ListRequest) ([]*model.WorkItem, int, error) {
	var preds []storage.Predicate
	f := req.Filters
	if len(f.Types) > 0 {
		preds = append(preds, storage.In("item_type", toStrings(f.Types)))
	}
	if len(f.Statuses) > 0 {
		preds = append(preds, storage.In("status", toStrings(f.Statuses)))
	}
	if len(f.Priorities) > 0 {
		preds = append(preds, storage.In("priority", toStrings(f.Priorities)))
	}
	if f.RootsOnly {
		preds = append(preds, storage.IsNull("parent_id"))
	} else if f.ParentID != nil {
		preds = append(preds, storage.Eq("parent_id", *f.ParentID))
	}

	where := storage.And(preds...)
	total, err := store.CountWorkItems(where)
	if err != nil {
		return nil, 0, err
	}

	orderBy := "order_index, created_at"
	switch req.SortBy {
	case "", "order", "order_index":
	case "created_at", "updated_at", "priority", "status", "title", "progress_percentage":
		orderBy = req.SortBy
	default:
		return nil, 0, fmt.Errorf("%w: cannot sort by %q", ErrInvalidInput, req.SortBy)
	}

	items, err := store.ListWorkItems(storage.ListOptions{
		Where:   where,
		OrderBy: orderBy,
		Desc:    req.SortDesc,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Resolve finds an item by exact id, then exact case-insensitive title, then
// keyword-AND over title and description. First hit in sibling order wins.
func (e *Engine) Resolve(store *storage.Store, ref string) (*model.WorkItem, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrInvalidInput)
	}

	if item, err := store.GetWorkItem(ref); err == nil {
		return item, nil
	} else if !errors.Is(err, storage.ErrWorkItemNotFound) {
		return nil, err
	}

	items, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if strings.EqualFold(item.Title, ref) {
			return item, nil
		}
	}

	terms := strings.Fields(strings.ToLower(ref))
	if len(terms) > 0 {
		for _, item := range items {
			haystack := strings.ToLower(item.Title + " " + item.Description)
			matched := true
			for _, term := range terms {
				if !strings.Contains(haystack, term) {
					matched = false
					break
				}
			}
			if matched {
				return item, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// embedInto computes the item's vector. Embedding failures degrade to a
// missing vector rather than failing the write; keyword search still works.
func (e *Engine) embedInto(ctx context.Context, item *model.WorkItem) {
	vec, err := e.embedder.Embed(ctx, item.EmbeddingText())
	if err != nil {
		logger.Warn("embedding failed for %s: %v", item.ID, err)
		item.Vector = nil
		return
	}
	item.Vector = vec
}

func (e *Engine) subtreeIDs(store *storage.Store, rootID string) ([]string, error) {
	var ids []string
	seen := map[string]bool{rootID: true}
	queue := []string{rootID}
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
			ids = append(ids, child.ID)
			queue = append(queue, child.ID)
		}
	}
	return ids, nil
}

func toStrings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}
