package mcp

import (
	"context"

	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/workitem"
)

// HierarchyParams is the unified params struct for jive_get_hierarchy.
type HierarchyParams struct {
	Action string `json:"action,omitempty" description:"get (default), get_children, get_dependencies, add_dependency, remove_dependency, validate, validate_comprehensive, or cleanup_orphans"`

	WorkItemID string `json:"work_item_id,omitempty" description:"Work item id, exact title, or keywords"`

	// For get: which relationship to walk.
	RelationshipType string `json:"relationship_type,omitempty" description:"children, parents, ancestors, descendants, dependencies, dependents, or full_hierarchy (default)"`
	MaxDepth         int    `json:"max_depth,omitempty" description:"Depth cap for full_hierarchy (default 10)"`
	IncludeCompleted bool   `json:"include_completed,omitempty"`
	IncludeCancelled bool   `json:"include_cancelled,omitempty"`

	// For add_dependency and remove_dependency.
	TargetID       string `json:"target_id,omitempty" description:"The item work_item_id depends on"`
	DependencyType string `json:"dependency_type,omitempty" description:"Edge label; only blocks is stored"`

	// For validate: restrict the check to these items.
	WorkItemIDs []string `json:"work_item_ids,omitempty"`

	// For cleanup_orphans.
	CleanupAction string `json:"cleanup_action,omitempty" description:"move_to_root (default), delete, or assign_parent"`
	NewParentID   string `json:"new_parent_id,omitempty" description:"Parent for assign_parent"`

	Namespace string `json:"namespace,omitempty" description:"Target namespace; defaults per session and server config"`
}

var hierarchyActions = []string{
	"get", "get_children", "get_dependencies", "add_dependency",
	"remove_dependency", "validate", "validate_comprehensive", "cleanup_orphans",
}

func (s *Server) handleHierarchy(ctx context.Context, call *ToolCall, p HierarchyParams) *Result {
	action := p.Action
	if action == "" && (p.RelationshipType != "" || p.WorkItemID != "") {
		action = "get"
	}

	switch action {
	case "get":
		return s.hierarchyGet(ctx, call, p)
	case "get_children":
		return s.hierarchyChildren(ctx, call, p)
	case "get_dependencies":
		return s.hierarchyDependencies(ctx, call, p)
	case "add_dependency":
		return s.hierarchyAddDependency(ctx, call, p)
	case "remove_dependency":
		return s.hierarchyRemoveDependency(ctx, call, p)
	case "validate":
		return s.hierarchyValidate(ctx, call, p)
	case "validate_comprehensive":
		return s.hierarchyValidateAll(ctx, call)
	case "cleanup_orphans":
		return s.hierarchyCleanup(ctx, call, p)
	default:
		return badAction("jive_get_hierarchy", p.Action, hierarchyActions)
	}
}

// hierarchyGet walks one relationship from the item. full_hierarchy returns
// the DFS tree; the list relationships return flat item slices.
func (s *Server) hierarchyGet(ctx context.Context, call *ToolCall, p HierarchyParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for get")
	}

	switch p.RelationshipType {
	case "children":
		return s.hierarchyChildren(ctx, call, p)
	case "parents", "ancestors":
		items, err := s.engine.Ancestors(ctx, call.Store, p.WorkItemID)
		if err != nil {
			return failErr(err)
		}
		return okMsg(map[string]any{"items": items, "total": len(items)},
			"Found %d ancestor(s)", len(items))
	case "descendants":
		items, err := s.engine.Descendants(ctx, call.Store, p.WorkItemID)
		if err != nil {
			return failErr(err)
		}
		return okMsg(map[string]any{"items": items, "total": len(items)},
			"Found %d descendant(s)", len(items))
	case "dependencies":
		return s.hierarchyDependencies(ctx, call, p)
	case "dependents":
		items, err := s.engine.Dependents(ctx, call.Store, p.WorkItemID)
		if err != nil {
			return failErr(err)
		}
		return okMsg(map[string]any{"items": items, "total": len(items)},
			"Found %d dependent(s)", len(items))
	case "", "full_hierarchy":
		maxDepth := p.MaxDepth
		if maxDepth <= 0 {
			maxDepth = model.MaxHierarchyDepth
		}
		filter := workitem.HierarchyFilter{
			IncludeCompleted: p.IncludeCompleted,
			IncludeCancelled: p.IncludeCancelled,
		}
		tree, err := s.engine.FullHierarchy(ctx, call.Store, p.WorkItemID, maxDepth, filter)
		if err != nil {
			return failErr(err)
		}
		return ok(map[string]any{"tree": tree, "max_depth": maxDepth})
	default:
		return fail(CodeValidation,
			"unknown relationship_type %q; expected children, parents, ancestors, descendants, dependencies, dependents, or full_hierarchy",
			p.RelationshipType)
	}
}

func (s *Server) hierarchyChildren(ctx context.Context, call *ToolCall, p HierarchyParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for get_children")
	}
	items, err := s.engine.Children(ctx, call.Store, p.WorkItemID)
	if err != nil {
		return failErr(err)
	}
	return okMsg(map[string]any{"items": items, "total": len(items)},
		"Found %d child(ren)", len(items))
}

func (s *Server) hierarchyDependencies(ctx context.Context, call *ToolCall, p HierarchyParams) *Result {
	if p.WorkItemID == "" {
		return fail(CodeValidation, "work_item_id is required for get_dependencies")
	}
	deps, missing, err := s.engine.Dependencies(ctx, call.Store, p.WorkItemID)
	if err != nil {
		return failErr(err)
	}
	res := okMsg(map[string]any{"dependencies": deps, "total": len(deps)},
		"Found %d dependenc(ies)", len(deps))
	if len(missing) > 0 {
		res.WithMeta("missing_dependencies", missing)
	}
	return res
}

func (s *Server) hierarchyAddDependency(ctx context.Context, call *ToolCall, p HierarchyParams) *Result {
	if p.WorkItemID == "" || p.TargetID == "" {
		return fail(CodeValidation, "work_item_id and target_id are required for add_dependency")
	}
	item, err := s.engine.AddDependency(ctx, call.Store, p.WorkItemID, p.TargetID)
	if err != nil {
		return failErr(err)
	}
	return okMsg(item, "Added dependency %s -> %s", item.ID, p.TargetID)
}

func (s *Server) hierarchyRemoveDependency(ctx context.Context, call *ToolCall, p HierarchyParams) *Result {
	if p.WorkItemID == "" || p.TargetID == "" {
		return fail(CodeValidation, "work_item_id and target_id are required for remove_dependency")
	}
	item, err := s.engine.RemoveDependency(ctx, call.Store, p.WorkItemID, p.TargetID)
	if err != nil {
		return failErr(err)
	}
	return okMsg(item, "Removed dependency %s -> %s", item.ID, p.TargetID)
}

func (s *Server) hierarchyValidate(ctx context.Context, call *ToolCall, p HierarchyParams) *Result {
	refs := p.WorkItemIDs
	if len(refs) == 0 && p.WorkItemID != "" {
		refs = []string{p.WorkItemID}
	}
	report, err := s.engine.QuickValidate(ctx, call.Store, refs)
	if err != nil {
		return failErr(err)
	}
	return validationResult(report)
}

func (s *Server) hierarchyValidateAll(ctx context.Context, call *ToolCall) *Result {
	report, err := s.engine.ValidateHierarchy(ctx, call.Store)
	if err != nil {
		return failErr(err)
	}
	return validationResult(report)
}

func validationResult(report *workitem.ValidationReport) *Result {
	if report.IsValid {
		return okMsg(report, "Hierarchy is valid (%d item(s) checked)", report.CheckedCount)
	}
	return okMsg(report, "Hierarchy has issues: %d orphan(s), %d cycle(s), %d invalid reference(s)",
		len(report.Orphans), len(report.Cycles), len(report.InvalidReferences))
}

func (s *Server) hierarchyCleanup(ctx context.Context, call *ToolCall, p HierarchyParams) *Result {
	action := workitem.CleanupAction(p.CleanupAction)
	if p.CleanupAction == "" {
		action = workitem.CleanupMoveToRoot
	}
	outcomes, err := s.engine.CleanupOrphans(ctx, call.Store, action, p.NewParentID)
	if err != nil {
		return failErr(err)
	}
	s.refreshItemGauge(call)
	return okMsg(map[string]any{"outcomes": outcomes, "total": len(outcomes)},
		"Cleaned up %d orphan(s)", len(outcomes))
}
