package mcp

import (
	"context"

	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/workitem"
)

// ProgressParams is the unified params struct for jive_track_progress.
type ProgressParams struct {
	Action string `json:"action,omitempty" description:"track (default), report, milestone, analytics, or status"`

	WorkItemID string `json:"work_item_id,omitempty" description:"Work item id, exact title, or keywords"`

	// For track.
	Progress       *float64 `json:"progress,omitempty" description:"Completion percentage 0-100"`
	Status         *string  `json:"status,omitempty" description:"not_started, in_progress, blocked, completed, or cancelled"`
	Notes          string   `json:"notes,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	AutoCalculate  *bool    `json:"auto_calculate_progress,omitempty" description:"Roll parent progress up from children (default true)"`

	// For milestone.
	TargetDate string `json:"target_date,omitempty" description:"Milestone date as YYYY-MM-DD"`

	Namespace string `json:"namespace,omitempty" description:"Target namespace; defaults per session and server config"`
}

var progressActions = []string{"track", "report", "milestone", "analytics", "status"}

func (s *Server) handleProgress(ctx context.Context, call *ToolCall, p ProgressParams) *Result {
	action := p.Action
	if action == "" {
		action = "track"
	}

	switch action {
	case "track":
		return s.progressTrack(ctx, call, p)
	case "report":
		return s.progressReport(ctx, call)
	case "milestone":
		return s.progressMilestone(ctx, call, p)
	case "analytics":
		return s.progressAnalytics(ctx, call)
	case "status":
		return s.progressStatus(ctx, call, p)
	default:
		return badAction("jive_track_progress", p.Action, progressActions)
	}
}

func (s *Server) progressTrack(ctx context.Context, call *ToolCall, p ProgressParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for track")
	}
	update := workitem.ProgressUpdate{
		Ref:            p.WorkItemID,
		Progress:       p.Progress,
		Notes:          p.Notes,
		EstimatedHours: p.EstimatedHours,
		AutoCalculate:  p.AutoCalculate,
	}
	if p.Status != nil {
		st := model.Status(*p.Status)
		update.Status = &st
	}
	item, err := s.engine.TrackProgress(ctx, call.Store, update)
	if err != nil {
		return failErr(err)
	}
	return okMsg(item, "Updated progress of %s to %.0f%%", item.ID, item.ProgressPercentage)
}

func (s *Server) progressReport(ctx context.Context, call *ToolCall) *Result {
	report, err := s.engine.Report(ctx, call.Store)
	if err != nil {
		return failErr(err)
	}
	return ok(report)
}

// progressMilestone sets a milestone date when a work item is named and
// lists the namespace's milestones otherwise.
func (s *Server) progressMilestone(ctx context.Context, call *ToolCall, p ProgressParams) *Result {
	if p.WorkItemID == "" {
		items, err := s.engine.Milestones(ctx, call.Store)
		if err != nil {
			return failErr(err)
		}
		return okMsg(map[string]any{"milestones": items, "total": len(items)},
			"Found %d milestone(s)", len(items))
	}
	if p.TargetDate == "" {
		return fail(CodeValidation, "target_date is required to set a milestone")
	}
	item, err := s.engine.SetMilestone(ctx, call.Store, p.WorkItemID, p.TargetDate)
	if err != nil {
		return failErr(err)
	}
	return okMsg(item, "Set milestone %s on %s", p.TargetDate, item.ID)
}

func (s *Server) progressAnalytics(ctx context.Context, call *ToolCall) *Result {
	report, err := s.engine.Analytics(ctx, call.Store)
	if err != nil {
		return failErr(err)
	}
	return ok(report)
}

func (s *Server) progressStatus(ctx context.Context, call *ToolCall, p ProgressParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for status")
	}
	status, err := s.engine.StatusOf(ctx, call.Store, p.WorkItemID)
	if err != nil {
		return failErr(err)
	}
	return ok(status)
}
