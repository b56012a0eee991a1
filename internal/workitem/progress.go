package workitem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
)

// rollupAncestors recomputes aggregated progress up the parent chain after a
// child's progress or status moved. Each ancestor's progress becomes the
// unweighted mean of its direct children; ancestors manually marked blocked
// or cancelled keep their status and only the percentage moves.
func (e *Engine) rollupAncestors(store *storage.Store, item *model.WorkItem) {
	seen := map[string]bool{item.ID: true}
	parentID := item.Parent()
	for parentID != "" && !seen[parentID] {
		seen[parentID] = true
		parent, err := store.GetWorkItem(parentID)
		if errors.Is(err, storage.ErrWorkItemNotFound) {
			return
		}
		if err != nil {
			logger.Warn("progress rollup stopped at %s: %v", parentID, err)
			return
		}

		children, err := store.ListWorkItems(storage.ListOptions{Where: storage.Eq("parent_id", parent.ID)})
		if err != nil || len(children) == 0 {
			return
		}

		var sum float64
		completed := 0
		started := 0
		for _, c := range children {
			sum += c.ProgressPercentage
			if c.Status == model.StatusCompleted {
				completed++
			}
			if c.ProgressPercentage > 0 || c.Status == model.StatusInProgress {
				started++
			}
		}
		progress := model.ClampProgress(sum / float64(len(children)))

		updated := parent.Clone()
		updated.ProgressPercentage = progress
		if parent.Status != model.StatusBlocked && parent.Status != model.StatusCancelled {
			switch {
			case completed == len(children):
				updated.Status = model.StatusCompleted
				updated.ProgressPercentage = 100
				if updated.CompletedAt == nil {
					now := time.Now().UTC()
					updated.CompletedAt = &now
				}
			case started > 0:
				updated.Status = model.StatusInProgress
				updated.CompletedAt = nil
			default:
				updated.Status = model.StatusNotStarted
				updated.CompletedAt = nil
			}
		}

		if updated.ProgressPercentage == parent.ProgressPercentage && updated.Status == parent.Status {
			return
		}
		updated.UpdatedAt = bumpAfter(parent.UpdatedAt)
		if err := store.ReplaceWorkItem(updated); err != nil {
			logger.Warn("progress rollup failed to write %s: %v", parent.ID, err)
			return
		}
		parentID = updated.Parent()
	}
}

// ProgressUpdate is a track request: move an item's progress and optionally
// its status, with a note kept in the execution log.
type ProgressUpdate struct {
	Ref            string        `json:"work_item_id" validate:"required"`
	Progress       *float64      `json:"progress_percentage"`
	Status         *model.Status `json:"status"`
	Notes          string        `json:"notes"`
	EstimatedHours *float64      `json:"estimated_hours"`
	AutoCalculate  *bool         `json:"auto_calculate_status"`
}

// TrackProgress applies a progress update and records it so status queries
// can show history.
func (e *Engine) TrackProgress(ctx context.Context, store *storage.Store, upd ProgressUpdate) (*model.WorkItem, error) {
	req := UpdateRequest{
		Ref:                 upd.Ref,
		Progress:            upd.Progress,
		Status:              upd.Status,
		AutoCalculateStatus: upd.AutoCalculate,
	}
	item, err := e.Update(ctx, store, req)
	if err != nil {
		return nil, err
	}

	meta := ""
	if upd.EstimatedHours != nil {
		raw, _ := json.Marshal(map[string]float64{"estimated_hours": *upd.EstimatedHours})
		meta = string(raw)
	}
	rec := &model.ExecutionRecord{
		ID:         uuid.New().String(),
		WorkItemID: item.ID,
		Action:     "progress",
		Status:     model.ExecutionSucceeded,
		Details:    upd.Notes,
		Timestamp:  time.Now().UTC(),
		Metadata:   meta,
	}
	if err := store.AppendExecution(rec); err != nil {
		logger.Warn("progress note for %s not recorded: %v", item.ID, err)
	}
	return item, nil
}

// BlockedItem names a blocked work item and the incomplete dependencies
// holding it.
type BlockedItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Blockers []string `json:"blockers"`
}

// ProgressReport is the namespace-wide progress summary.
type ProgressReport struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	TotalItems      int            `json:"total_items"`
	ByStatus        map[string]int `json:"by_status"`
	ByType          map[string]int `json:"by_type"`
	ByPriority      map[string]int `json:"by_priority"`
	AverageProgress float64        `json:"average_progress"`
	CompletionRate  float64        `json:"completion_rate"`
	BlockedItems    []BlockedItem  `json:"blocked_items"`
}

// Report aggregates every item in the namespace.
func (e *Engine) Report(ctx context.Context, store *storage.Store) (*ProgressReport, error) {
	items, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.WorkItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	report := &ProgressReport{
		GeneratedAt: time.Now().UTC(),
		TotalItems:  len(items),
		ByStatus:    map[string]int{},
		ByType:      map[string]int{},
		ByPriority:  map[string]int{},
	}
	var sum float64
	completed := 0
	for _, item := range items {
		report.ByStatus[string(item.Status)]++
		report.ByType[string(item.ItemType)]++
		report.ByPriority[string(item.Priority)]++
		sum += item.ProgressPercentage
		if item.Status == model.StatusCompleted {
			completed++
		}
		if item.Status == model.StatusBlocked {
			blocked := BlockedItem{ID: item.ID, Title: item.Title}
			for _, dep := range item.Dependencies {
				if d, ok := byID[dep]; ok && d.Status != model.StatusCompleted {
					blocked.Blockers = append(blocked.Blockers, dep)
				}
			}
			report.BlockedItems = append(report.BlockedItems, blocked)
		}
	}
	if len(items) > 0 {
		report.AverageProgress = sum / float64(len(items))
		report.CompletionRate = float64(completed) / float64(len(items))
	}
	return report, nil
}

// AnalyticsReport extends the summary with velocity over trailing windows.
type AnalyticsReport struct {
	ProgressReport
	CompletedLast7Days  int      `json:"completed_last_7_days"`
	CompletedLast30Days int      `json:"completed_last_30_days"`
	VelocityPerDay      float64  `json:"velocity_per_day"`
	Bottlenecks         []string `json:"bottlenecks"`
}

// Analytics computes completion velocity from completed_at timestamps and
// flags bottlenecks: incomplete items that block two or more others.
func (e *Engine) Analytics(ctx context.Context, store *storage.Store) (*AnalyticsReport, error) {
	base, err := e.Report(ctx, store)
	if err != nil {
		return nil, err
	}
	items, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return nil, err
	}

	out := &AnalyticsReport{ProgressReport: *base}
	now := time.Now().UTC()
	dependents := map[string]int{}
	byID := make(map[string]*model.WorkItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, item := range items {
		if item.CompletedAt != nil {
			age := now.Sub(*item.CompletedAt)
			if age <= 7*24*time.Hour {
				out.CompletedLast7Days++
			}
			if age <= 30*24*time.Hour {
				out.CompletedLast30Days++
			}
		}
		if item.Status == model.StatusCompleted {
			continue
		}
		for _, dep := range item.Dependencies {
			if d, ok := byID[dep]; ok && d.Status != model.StatusCompleted {
				dependents[dep]++
			}
		}
	}
	out.VelocityPerDay = float64(out.CompletedLast30Days) / 30

	for id, n := range dependents {
		if n >= 2 {
			out.Bottlenecks = append(out.Bottlenecks, id)
		}
	}
	sort.Strings(out.Bottlenecks)
	return out, nil
}

// ItemStatus is a single item's progress view with its recorded history.
type ItemStatus struct {
	Item    *model.WorkItem          `json:"item"`
	History []*model.ExecutionRecord `json:"history"`
}

// StatusOf resolves ref and attaches its execution-log history, newest
// first.
func (e *Engine) StatusOf(ctx context.Context, store *storage.Store, ref string) (*ItemStatus, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	history, err := store.ListExecutions(storage.ListOptions{
		Where: storage.Eq("work_item_id", item.ID),
	})
	if err != nil {
		return nil, err
	}
	return &ItemStatus{Item: item, History: history}, nil
}

const milestoneTag = "milestone"

// SetMilestone tags ref as a milestone, optionally recording a target date
// in its metadata.
func (e *Engine) SetMilestone(ctx context.Context, store *storage.Store, ref, targetDate string) (*model.WorkItem, error) {
	item, err := e.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	updated := item.Clone()
	if !hasTag(updated.Tags, milestoneTag) {
		updated.Tags = append(updated.Tags, milestoneTag)
	}
	if targetDate != "" {
		if _, err := time.Parse("2006-01-02", targetDate); err != nil {
			return nil, fmt.Errorf("%w: target_date must be YYYY-MM-DD", ErrInvalidInput)
		}
		meta := map[string]any{}
		if item.Metadata != "" {
			_ = json.Unmarshal([]byte(item.Metadata), &meta)
		}
		meta["milestone_target_date"] = targetDate
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		updated.Metadata = string(raw)
	}
	updated.UpdatedAt = bumpAfter(item.UpdatedAt)
	if err := store.ReplaceWorkItem(updated); err != nil {
		return nil, fmt.Errorf("failed to set milestone: %w", err)
	}
	return updated, nil
}

// Milestones lists milestone-tagged items in sibling order.
func (e *Engine) Milestones(ctx context.Context, store *storage.Store) ([]*model.WorkItem, error) {
	items, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	var out []*model.WorkItem
	for _, item := range items {
		if hasTag(item.Tags, milestoneTag) {
			out = append(out, item)
		}
	}
	return out, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
