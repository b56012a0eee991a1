package mcp

import (
	"context"

	"github.com/jivehq/jive/internal/execution"
)

// ExecuteParams is the unified params struct for jive_execute_work_item.
type ExecuteParams struct {
	Action string `json:"action,omitempty" description:"execute (default), status, cancel, or validate"`

	WorkItemID  string `json:"work_item_id,omitempty" description:"Work item id, exact title, or keywords"`
	ExecutionID string `json:"execution_id,omitempty" description:"Execution record id for status and cancel"`

	AgentID string `json:"agent_id,omitempty" description:"Agent claiming the execution"`
	Details string `json:"details,omitempty" description:"Free-form execution notes"`

	Namespace string `json:"namespace,omitempty" description:"Target namespace; defaults per session and server config"`
}

var executeActions = []string{"execute", "status", "cancel", "validate"}

func (s *Server) handleExecute(ctx context.Context, call *ToolCall, p ExecuteParams) *Result {
	action := p.Action
	if action == "" {
		action = "execute"
	}

	switch action {
	case "execute":
		return s.executeStart(ctx, call, p)
	case "status":
		return s.executeStatus(ctx, call, p)
	case "cancel":
		return s.executeCancel(ctx, call, p)
	case "validate":
		return s.executeValidate(ctx, call, p)
	default:
		return badAction("jive_execute_work_item", p.Action, executeActions)
	}
}

func (s *Server) executeStart(ctx context.Context, call *ToolCall, p ExecuteParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for execute")
	}
	rec, err := s.executions.Execute(ctx, call.Store, execution.ExecuteRequest{
		Ref:     p.WorkItemID,
		AgentID: p.AgentID,
		Details: p.Details,
	})
	if err != nil {
		return failErr(err)
	}
	return okMsg(rec, "Started execution %s for %s", rec.ID, rec.WorkItemID)
}

// executeStatus reports either a specific execution record or the most
// recent one for a work item.
func (s *Server) executeStatus(ctx context.Context, call *ToolCall, p ExecuteParams) *Result {
	switch {
	case p.ExecutionID != "":
		rec, err := s.executions.Status(ctx, call.Store, p.ExecutionID)
		if err != nil {
			return failErr(err)
		}
		return ok(rec)
	case p.WorkItemID != "":
		rec, err := s.executions.LatestForItem(ctx, call.Store, p.WorkItemID)
		if err != nil {
			return failErr(err)
		}
		return ok(rec)
	default:
		return fail(CodeValidation, "execution_id or work_item_id is required for status")
	}
}

func (s *Server) executeCancel(ctx context.Context, call *ToolCall, p ExecuteParams) *Result {
	if p.ExecutionID == "" {
		return fail(CodeValidation, "execution_id is required for cancel")
	}
	rec, err := s.executions.Cancel(ctx, call.Store, p.ExecutionID)
	if err != nil {
		return failErr(err)
	}
	return okMsg(rec, "Cancelled execution %s", rec.ID)
}

// executeValidate checks whether the item is ready to run without starting
// anything.
func (s *Server) executeValidate(ctx context.Context, call *ToolCall, p ExecuteParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for validate")
	}
	readiness, err := s.executions.Validate(ctx, call.Store, p.WorkItemID)
	if err != nil {
		return failErr(err)
	}
	if readiness.Ready {
		return okMsg(readiness, "Work item %s is ready to execute", readiness.WorkItemID)
	}
	return okMsg(readiness, "Work item %s is blocked by %d incomplete dependenc(ies)",
		readiness.WorkItemID, len(readiness.BlockedBy))
}
