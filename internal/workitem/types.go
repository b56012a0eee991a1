package workitem

import (
	"errors"

	"github.com/jivehq/jive/internal/model"
)

var (
	// ErrNotFound mirrors the store sentinel so callers need only one check.
	ErrNotFound           = errors.New("work item not found")
	ErrCircularDependency = errors.New("circular dependency")
	ErrInvalidHierarchy   = errors.New("invalid hierarchy")
	ErrInvalidInput       = errors.New("invalid input")
)

// CreateRequest carries the fields for a new work item. Zero values fall back
// to defaults (priority medium, status not_started, empty collections).
type CreateRequest struct {
	Type               model.ItemType `json:"type" validate:"required"`
	Title              string         `json:"title" validate:"required,max=500"`
	Description        string         `json:"description" validate:"max=20000"`
	Status             model.Status   `json:"status"`
	Priority           model.Priority `json:"priority"`
	ParentID           *string        `json:"parent_id"`
	Dependencies       []string       `json:"dependencies"`
	Tags               []string       `json:"tags"`
	AcceptanceCriteria []string       `json:"acceptance_criteria"`
	Progress           *float64       `json:"progress_percentage"`
	Metadata           string         `json:"metadata"`
}

// UpdateRequest merges changed fields into an existing item. Nil pointers
// leave the field untouched. Ref accepts an id, an exact title, or keywords.
type UpdateRequest struct {
	Ref                 string          `json:"work_item_id" validate:"required"`
	Title               *string         `json:"title"`
	Description         *string         `json:"description"`
	Status              *model.Status   `json:"status"`
	Priority            *model.Priority `json:"priority"`
	ParentID            *string         `json:"parent_id"`
	Progress            *float64        `json:"progress_percentage"`
	Tags                *[]string       `json:"tags"`
	AcceptanceCriteria  *[]string       `json:"acceptance_criteria"`
	Dependencies        *[]string       `json:"dependencies"`
	Metadata            *string         `json:"metadata"`
	AutoCalculateStatus *bool           `json:"auto_calculate_status"`
}

// ListFilters narrows a list query.
type ListFilters struct {
	Types      []model.ItemType `json:"type"`
	Statuses   []model.Status   `json:"status"`
	Priorities []model.Priority `json:"priority"`
	ParentID   *string          `json:"parent_id"`
	RootsOnly  bool             `json:"roots_only"`
}

// ListRequest is a filtered, paginated listing.
type ListRequest struct {
	Filters  ListFilters `json:"filters"`
	SortBy   string      `json:"sort_by"`
	SortDesc bool        `json:"sort_desc"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
}

// DeleteResult reports what a delete removed.
type DeleteResult struct {
	DeletedIDs []string `json:"deleted_ids"`
}

// TreeNode is one node of a full-hierarchy traversal.
type TreeNode struct {
	Item     *model.WorkItem `json:"item"`
	Depth    int             `json:"depth"`
	Children []*TreeNode     `json:"children"`
}

// HierarchyFilter controls which statuses traversals include.
type HierarchyFilter struct {
	IncludeCompleted bool `json:"include_completed"`
	IncludeCancelled bool `json:"include_cancelled"`
}

// keeps reports whether the filter retains an item.
func (f HierarchyFilter) keeps(item *model.WorkItem) bool {
	if item.Status == model.StatusCompleted && !f.IncludeCompleted {
		return false
	}
	if item.Status == model.StatusCancelled && !f.IncludeCancelled {
		return false
	}
	return true
}

// InvalidRef is a parent or dependency edge pointing at a missing item.
type InvalidRef struct {
	ItemID string `json:"item_id"`
	Field  string `json:"field"`
	Target string `json:"target"`
}

// DepthWarning flags an item whose ancestor chain exceeds the recommended
// maximum.
type DepthWarning struct {
	ItemID string `json:"item_id"`
	Depth  int    `json:"depth"`
}

// ValidationReport aggregates a hierarchy validation pass.
type ValidationReport struct {
	IsValid           bool           `json:"is_valid"`
	CheckedCount      int            `json:"checked_count"`
	Orphans           []string       `json:"orphans"`
	Cycles            [][]string     `json:"cycles"`
	InvalidReferences []InvalidRef   `json:"invalid_references"`
	DepthWarnings     []DepthWarning `json:"depth_warnings"`
}

// CleanupAction is what to do with orphaned items.
type CleanupAction string

const (
	CleanupMoveToRoot   CleanupAction = "move_to_root"
	CleanupDelete       CleanupAction = "delete"
	CleanupAssignParent CleanupAction = "assign_parent"
)

// CleanupOutcome is the per-item result of an orphan cleanup.
type CleanupOutcome struct {
	ItemID  string `json:"item_id"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SequenceChange records one item's renumbering during regeneration.
type SequenceChange struct {
	ItemID      string `json:"item_id"`
	OldSequence string `json:"old_sequence"`
	NewSequence string `json:"new_sequence"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// RegenerateReport aggregates a sequence-number regeneration.
type RegenerateReport struct {
	Total   int              `json:"total"`
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
	Changes []SequenceChange `json:"changes"`
}
