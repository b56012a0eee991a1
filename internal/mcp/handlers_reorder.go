package mcp

import "context"

// ReorderParams is the unified params struct for jive_reorder_work_items.
type ReorderParams struct {
	Action string `json:"action,omitempty" description:"reorder (default), move, swap, or recalculate"`

	// For reorder: siblings listed in their new order.
	WorkItemIDs []string `json:"work_item_ids,omitempty"`
	ParentID    *string  `json:"parent_id,omitempty" description:"Parent whose children are reordered; null means root"`

	// For move and swap.
	WorkItemID  string  `json:"work_item_id,omitempty"`
	NewParentID *string `json:"new_parent_id,omitempty" description:"Destination parent; null moves to root"`
	Position    *int    `json:"position,omitempty" description:"Slot among the new siblings; omitted appends"`
	SwapWithID  string  `json:"swap_with_id,omitempty"`

	Namespace string `json:"namespace,omitempty" description:"Target namespace; defaults per session and server config"`
}

var reorderActions = []string{"reorder", "move", "swap", "recalculate"}

func (s *Server) handleReorder(ctx context.Context, call *ToolCall, p ReorderParams) *Result {
	action := p.Action
	if action == "" {
		action = "reorder"
	}

	switch action {
	case "reorder":
		return s.reorderSiblings(ctx, call, p)
	case "move":
		return s.reorderMove(ctx, call, p)
	case "swap":
		return s.reorderSwap(ctx, call, p)
	case "recalculate":
		return s.syncRegenerate(call)
	default:
		return badAction("jive_reorder_work_items", p.Action, reorderActions)
	}
}

func (s *Server) reorderSiblings(ctx context.Context, call *ToolCall, p ReorderParams) *Result {
	if len(p.WorkItemIDs) == 0 {
		return fail(CodeValidation, "work_item_ids is required for reorder")
	}
	items, err := s.engine.Reorder(ctx, call.Store, p.WorkItemIDs, p.ParentID)
	if err != nil {
		return failErr(err)
	}
	return okMsg(map[string]any{"items": items, "total": len(items)},
		"Reordered %d item(s)", len(items))
}

func (s *Server) reorderMove(ctx context.Context, call *ToolCall, p ReorderParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for move")
	}
	position := -1
	if p.Position != nil {
		position = *p.Position
	}
	item, err := s.engine.Move(ctx, call.Store, p.WorkItemID, p.NewParentID, position)
	if err != nil {
		return failErr(err)
	}
	return okMsg(item, "Moved %s to sequence %s", item.ID, item.SequenceNumber)
}

func (s *Server) reorderSwap(ctx context.Context, call *ToolCall, p ReorderParams) *Result {
	if p.WorkItemID == "" || p.SwapWithID == "" {
		return fail(CodeValidation, "work_item_id and swap_with_id are required for swap")
	}
	items, err := s.engine.Swap(ctx, call.Store, p.WorkItemID, p.SwapWithID)
	if err != nil {
		return failErr(err)
	}
	return okMsg(map[string]any{"items": items, "total": len(items)},
		"Swapped %s and %s", p.WorkItemID, p.SwapWithID)
}
