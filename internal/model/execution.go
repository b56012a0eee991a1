package model

import "time"

// ExecutionStatus is the state of one execution record.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionSucceeded, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from→to is a legal state change.
// pending→running, running→succeeded|failed|cancelled; terminal states reject
// everything.
func (s ExecutionStatus) CanTransition(to ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return to == ExecutionRunning || to == ExecutionCancelled
	case ExecutionRunning:
		return to == ExecutionSucceeded || to == ExecutionFailed || to == ExecutionCancelled
	}
	return false
}

// ExecutionRecord is one append-only entry in a namespace's execution log.
type ExecutionRecord struct {
	ID              string          `json:"id"`
	WorkItemID      string          `json:"work_item_id,omitempty"`
	Action          string          `json:"action"`
	Status          ExecutionStatus `json:"status"`
	AgentID         string          `json:"agent_id,omitempty"`
	Details         string          `json:"details,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	DurationSeconds float64         `json:"duration_seconds"`
	Timestamp       time.Time       `json:"timestamp"`
	Metadata        string          `json:"metadata,omitempty"`
}
