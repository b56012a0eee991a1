// Package model defines the work-item records and enumerations shared by the
// storage, engine, search, and tool layers.
package model

import (
	"strings"
	"time"
)

// ItemType classifies a work item within the agile hierarchy.
type ItemType string

const (
	TypeInitiative ItemType = "initiative"
	TypeEpic       ItemType = "epic"
	TypeFeature    ItemType = "feature"
	TypeStory      ItemType = "story"
	TypeTask       ItemType = "task"
)

// ItemTypes lists all valid item types from root to leaf.
var ItemTypes = []ItemType{TypeInitiative, TypeEpic, TypeFeature, TypeStory, TypeTask}

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case TypeInitiative, TypeEpic, TypeFeature, TypeStory, TypeTask:
		return true
	}
	return false
}

// childOf maps each container type to the single type it may contain.
// Task is a leaf and has no entry.
var childOf = map[ItemType]ItemType{
	TypeInitiative: TypeEpic,
	TypeEpic:       TypeFeature,
	TypeFeature:    TypeStory,
	TypeStory:      TypeTask,
}

// CanContain reports whether a parent of type p may hold a child of type c.
func CanContain(p, c ItemType) bool {
	want, ok := childOf[p]
	return ok && want == c
}

// ChildType returns the type a parent of type p contains, if any.
func (t ItemType) ChildType() (ItemType, bool) {
	c, ok := childOf[t]
	return c, ok
}

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists all valid work-item statuses.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Priority orders work items by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// BoostFactor is the search-score multiplier applied per priority.
func (p Priority) BoostFactor() float64 {
	switch p {
	case PriorityCritical:
		return 1.3
	case PriorityHigh:
		return 1.2
	case PriorityLow:
		return 0.9
	default:
		return 1.0
	}
}

// MaxHierarchyDepth is the recommended limit for ancestor chains. Items deeper
// than this validate with a warning, not an error.
const MaxHierarchyDepth = 10

// EmbeddingDim is the fixed length of work-item vectors.
const EmbeddingDim = 384

// WorkItem is a node in the Initiative/Epic/Feature/Story/Task hierarchy.
// Vector is persisted but never serialised toward MCP clients.
type WorkItem struct {
	ID                 string     `json:"id"`
	ItemType           ItemType   `json:"item_type"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Status             Status     `json:"status"`
	Priority           Priority   `json:"priority"`
	ParentID           *string    `json:"parent_id,omitempty"`
	Dependencies       []string   `json:"dependencies"`
	SequenceNumber     string     `json:"sequence_number"`
	OrderIndex         int64      `json:"order_index"`
	ProgressPercentage float64    `json:"progress_percentage"`
	Tags               []string   `json:"tags"`
	AcceptanceCriteria []string   `json:"acceptance_criteria"`
	Metadata           string     `json:"metadata,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	Vector []float32 `json:"-"`
}

// EmbeddingText is the source text for the item's vector.
func (w *WorkItem) EmbeddingText() string {
	return strings.TrimSpace(w.Title + " " + w.Description)
}

// Parent returns the parent id or "" when the item is a root.
func (w *WorkItem) Parent() string {
	if w.ParentID == nil {
		return ""
	}
	return *w.ParentID
}

// HasDependency reports whether id is in the dependency set.
func (w *WorkItem) HasDependency(id string) bool {
	for _, d := range w.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. The store rewrites rows instead of updating them
// in place, so callers mutate copies.
func (w *WorkItem) Clone() *WorkItem {
	c := *w
	c.Dependencies = append([]string(nil), w.Dependencies...)
	c.Tags = append([]string(nil), w.Tags...)
	c.AcceptanceCriteria = append([]string(nil), w.AcceptanceCriteria...)
	c.Vector = append([]float32(nil), w.Vector...)
	if w.ParentID != nil {
		p := *w.ParentID
		c.ParentID = &p
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ClampProgress bounds a progress percentage to [0,100].
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
