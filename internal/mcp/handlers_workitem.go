package mcp

import (
	"context"

	"github.com/jivehq/jive/internal/audit"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/workitem"
)

// ManageParams is the unified params struct for jive_manage_work_item.
type ManageParams struct {
	Action string `json:"action" description:"One of: create, update, delete"`

	// Identifier for update and delete. Accepts an id, an exact title, or
	// keywords matched against title and description.
	WorkItemID string `json:"work_item_id,omitempty" description:"Work item id, exact title, or keywords"`

	// Fields for create and update.
	Type                *string   `json:"type,omitempty" description:"initiative, epic, feature, story, or task"`
	Title               *string   `json:"title,omitempty"`
	Description         *string   `json:"description,omitempty"`
	Status              *string   `json:"status,omitempty" description:"not_started, in_progress, completed, blocked, or cancelled"`
	Priority            *string   `json:"priority,omitempty" description:"low, medium, high, or critical"`
	ParentID            *string   `json:"parent_id,omitempty"`
	Tags                *[]string `json:"tags,omitempty"`
	AcceptanceCriteria  *[]string `json:"acceptance_criteria,omitempty"`
	Dependencies        *[]string `json:"dependencies,omitempty"`
	Progress            *float64  `json:"progress_percentage,omitempty"`
	Metadata            *string   `json:"metadata,omitempty" description:"Free-form JSON object"`
	AutoCalculateStatus *bool     `json:"auto_calculate_status,omitempty"`

	// For delete.
	DeleteChildren bool `json:"delete_children,omitempty" description:"Also delete the whole subtree"`

	Namespace string `json:"namespace,omitempty" description:"Target namespace; defaults per session and server config"`
}

var manageActions = []string{"create", "update", "delete"}

func (s *Server) handleManage(ctx context.Context, call *ToolCall, p ManageParams) *Result {
	switch p.Action {
	case "create":
		return s.manageCreate(ctx, call, p)
	case "update":
		return s.manageUpdate(ctx, call, p)
	case "delete":
		return s.manageDelete(ctx, call, p)
	default:
		return badAction("jive_manage_work_item", p.Action, manageActions)
	}
}

func (s *Server) manageCreate(ctx context.Context, call *ToolCall, p ManageParams) *Result {
	req := workitem.CreateRequest{
		Type:        model.ItemType(deref(p.Type)),
		Title:       deref(p.Title),
		Description: deref(p.Description),
		Status:      model.Status(deref(p.Status)),
		Priority:    model.Priority(deref(p.Priority)),
		ParentID:    p.ParentID,
		Progress:    p.Progress,
		Metadata:    deref(p.Metadata),
	}
	if p.Tags != nil {
		req.Tags = *p.Tags
	}
	if p.AcceptanceCriteria != nil {
		req.AcceptanceCriteria = *p.AcceptanceCriteria
	}
	if p.Dependencies != nil {
		req.Dependencies = *p.Dependencies
	}

	item, err := s.engine.Create(ctx, call.Store, req)
	if err != nil {
		return failErr(err)
	}
	s.refreshItemGauge(call)
	return okMsg(item, "Created %s %s: %s", item.ItemType, item.SequenceNumber, item.Title)
}

func (s *Server) manageUpdate(ctx context.Context, call *ToolCall, p ManageParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for update")
	}
	req := workitem.UpdateRequest{
		Ref:                 p.WorkItemID,
		Title:               p.Title,
		Description:         p.Description,
		Status:              statusPtr(p.Status),
		Priority:            priorityPtr(p.Priority),
		ParentID:            p.ParentID,
		Progress:            p.Progress,
		Tags:                p.Tags,
		AcceptanceCriteria:  p.AcceptanceCriteria,
		Dependencies:        p.Dependencies,
		Metadata:            p.Metadata,
		AutoCalculateStatus: p.AutoCalculateStatus,
	}

	item, err := s.engine.Update(ctx, call.Store, req)
	if err != nil {
		return failErr(err)
	}
	return okMsg(item, "Updated %s %s", item.ItemType, item.SequenceNumber)
}

func (s *Server) manageDelete(ctx context.Context, call *ToolCall, p ManageParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for delete")
	}
	res, err := s.engine.Delete(ctx, call.Store, p.WorkItemID, p.DeleteChildren)
	if err != nil {
		auditCall(ctx, call, &audit.Event{
			Operation: audit.OpWorkItemDelete,
			Error:     err.Error(),
			Details:   map[string]any{"ref": p.WorkItemID},
		})
		return failErr(err)
	}
	auditCall(ctx, call, &audit.Event{
		Operation: audit.OpWorkItemDelete,
		Success:   true,
		Details:   map[string]any{"ref": p.WorkItemID, "deleted": len(res.DeletedIDs), "cascade": p.DeleteChildren},
	})
	s.refreshItemGauge(call)
	return okMsg(res, "Deleted %d work item(s)", len(res.DeletedIDs))
}

// GetParams is the unified params struct for jive_get_work_item.
type GetParams struct {
	Action string `json:"action,omitempty" description:"get (default) or list"`

	// For get.
	WorkItemID      string `json:"work_item_id,omitempty" description:"Work item id, exact title, or keywords"`
	IncludeChildren bool   `json:"include_children,omitempty"`

	// For list.
	Filters  GetFilters `json:"filters,omitempty"`
	SortBy   string     `json:"sort_by,omitempty" description:"order_index (default), created_at, updated_at, priority, or title"`
	SortDesc bool       `json:"sort_desc,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`

	Namespace string `json:"namespace,omitempty" description:"Target namespace; defaults per session and server config"`
}

// GetFilters narrows a list call.
type GetFilters struct {
	Type      []string `json:"type,omitempty"`
	Status    []string `json:"status,omitempty"`
	Priority  []string `json:"priority,omitempty"`
	ParentID  *string  `json:"parent_id,omitempty"`
	RootsOnly bool     `json:"roots_only,omitempty"`
}

var getActions = []string{"get", "list"}

func (s *Server) handleGet(ctx context.Context, call *ToolCall, p GetParams) *Result {
	action := p.Action
	if action == "" {
		action = "get"
	}

	switch action {
	case "get":
		return s.getOne(ctx, call, p)
	case "list":
		return s.getList(ctx, call, p)
	default:
		return badAction("jive_get_work_item", p.Action, getActions)
	}
}

func (s *Server) getOne(ctx context.Context, call *ToolCall, p GetParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for get")
	}
	item, err := s.engine.Get(ctx, call.Store, p.WorkItemID)
	if err != nil {
		return failErr(err)
	}

	data := map[string]any{"item": item}
	if p.IncludeChildren {
		children, err := s.engine.Children(ctx, call.Store, item.ID)
		if err != nil {
			return failErr(err)
		}
		data["children"] = children
	}
	return ok(data)
}

func (s *Server) getList(ctx context.Context, call *ToolCall, p GetParams) *Result {
	req := workitem.ListRequest{
		Filters: workitem.ListFilters{
			Types:      toItemTypes(p.Filters.Type),
			Statuses:   toStatuses(p.Filters.Status),
			Priorities: toPriorities(p.Filters.Priority),
			ParentID:   p.Filters.ParentID,
			RootsOnly:  p.Filters.RootsOnly,
		},
		SortBy:   p.SortBy,
		SortDesc: p.SortDesc,
		Limit:    p.Limit,
		Offset:   p.Offset,
	}

	items, total, err := s.engine.List(ctx, call.Store, req)
	if err != nil {
		return failErr(err)
	}
	return ok(map[string]any{
		"items":  items,
		"total":  total,
		"limit":  req.Limit,
		"offset": req.Offset,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func statusPtr(s *string) *model.Status {
	if s == nil {
		return nil
	}
	v := model.Status(*s)
	return &v
}

func priorityPtr(s *string) *model.Priority {
	if s == nil {
		return nil
	}
	v := model.Priority(*s)
	return &v
}

func toItemTypes(vals []string) []model.ItemType {
	out := make([]model.ItemType, 0, len(vals))
	for _, v := range vals {
		out = append(out, model.ItemType(v))
	}
	return out
}

func toStatuses(vals []string) []model.Status {
	out := make([]model.Status, 0, len(vals))
	for _, v := range vals {
		out = append(out, model.Status(v))
	}
	return out
}

func toPriorities(vals []string) []model.Priority {
	out := make([]model.Priority, 0, len(vals))
	for _, v := range vals {
		out = append(out, model.Priority(v))
	}
	return out
}
