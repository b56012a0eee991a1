package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jivehq/jive/internal/model"
)

// ptr returns a pointer to the given value.
func ptr[T any](v T) *T {
	return &v
}

// ItemOption is a function that modifies a WorkItem for testing.
type ItemOption func(*model.WorkItem)

// NewTestItem creates a test work item with sensible defaults.
func NewTestItem(t *testing.T, opts ...ItemOption) *model.WorkItem {
	t.Helper()

	now := time.Now().UTC()
	w := &model.WorkItem{
		ID:                 uuid.New().String(),
		ItemType:           model.TypeTask,
		Title:              "test-item-" + t.Name(),
		Description:        "Test work item for " + t.Name(),
		Status:             model.StatusNotStarted,
		Priority:           model.PriorityMedium,
		ParentID:           nil,
		Dependencies:       []string{},
		SequenceNumber:     "1",
		OrderIndex:         1,
		ProgressPercentage: 0,
		Tags:               []string{},
		AcceptanceCriteria: []string{},
		Metadata:           "{}",
		CreatedAt:          now,
		UpdatedAt:          now,
		CompletedAt:        nil,
		Vector:             nil,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WithItemID sets a specific ID for the test item.
func WithItemID(id string) ItemOption {
	return func(w *model.WorkItem) {
		w.ID = id
	}
}

// WithItemType sets the hierarchy type.
func WithItemType(it model.ItemType) ItemOption {
	return func(w *model.WorkItem) {
		w.ItemType = it
	}
}

// WithTitle sets a custom title for the test item.
func WithTitle(title string) ItemOption {
	return func(w *model.WorkItem) {
		w.Title = title
	}
}

// WithDescription sets the description.
func WithDescription(description string) ItemOption {
	return func(w *model.WorkItem) {
		w.Description = description
	}
}

// WithStatus sets the item status.
func WithStatus(status model.Status) ItemOption {
	return func(w *model.WorkItem) {
		w.Status = status
	}
}

// WithPriority sets the item priority.
func WithPriority(priority model.Priority) ItemOption {
	return func(w *model.WorkItem) {
		w.Priority = priority
	}
}

// WithParent places the item under the given parent.
func WithParent(parentID string) ItemOption {
	return func(w *model.WorkItem) {
		w.ParentID = ptr(parentID)
	}
}

// WithSequence sets the display sequence and its sibling sort position.
func WithSequence(seq string, order int64) ItemOption {
	return func(w *model.WorkItem) {
		w.SequenceNumber = seq
		w.OrderIndex = order
	}
}

// WithDependencies sets the dependency set.
func WithDependencies(ids ...string) ItemOption {
	return func(w *model.WorkItem) {
		w.Dependencies = ids
	}
}

// WithTags sets the item tags.
func WithTags(tags ...string) ItemOption {
	return func(w *model.WorkItem) {
		w.Tags = tags
	}
}

// WithVector sets the embedding vector.
func WithVector(vec ...float32) ItemOption {
	return func(w *model.WorkItem) {
		w.Vector = vec
	}
}

// WithCompleted marks the item completed at the given time.
func WithCompleted(at time.Time) ItemOption {
	return func(w *model.WorkItem) {
		w.Status = model.StatusCompleted
		w.ProgressPercentage = 100
		w.CompletedAt = ptr(at)
	}
}

// ExecutionOption is a function that modifies an ExecutionRecord for testing.
type ExecutionOption func(*model.ExecutionRecord)

// NewTestExecution creates a test execution record for the given work item.
func NewTestExecution(t *testing.T, workItemID string, opts ...ExecutionOption) *model.ExecutionRecord {
	t.Helper()

	rec := &model.ExecutionRecord{
		ID:         uuid.New().String(),
		WorkItemID: workItemID,
		Action:     "execute",
		Status:     model.ExecutionPending,
		Timestamp:  time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(rec)
	}

	return rec
}

// WithExecutionStatus sets the execution status.
func WithExecutionStatus(status model.ExecutionStatus) ExecutionOption {
	return func(rec *model.ExecutionRecord) {
		rec.Status = status
	}
}

// WithExecutionAction sets the recorded action.
func WithExecutionAction(action string) ExecutionOption {
	return func(rec *model.ExecutionRecord) {
		rec.Action = action
	}
}
