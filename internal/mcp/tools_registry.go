package mcp

// registerAllTools registers the unified work item tools with the registry.
func (s *Server) registerAllTools(r *Registry) {
	s.registerWorkItemTools(r)
	s.registerSearchTools(r)
	s.registerHierarchyTools(r)
	s.registerExecutionTools(r)
	s.registerSyncTools(r)
}

func (s *Server) registerWorkItemTools(r *Registry) {
	Register(r, ToolDef{
		Name: "jive_manage_work_item",
		Description: `Create, update, or delete work items — the agile hierarchy of initiatives, epics, features, stories, and tasks.

Actions:
  create — Create a work item. Requires type and title. Optional: description, status, priority, parent_id, tags, acceptance_criteria, dependencies, progress_percentage, metadata.
  update — Update fields on an existing item. Requires work_item_id; include only the fields to change.
  delete — Delete an item. Requires work_item_id. delete_children removes the whole subtree; otherwise children are left behind for cleanup_orphans.

Key parameters:
  type         — initiative, epic, feature, story, or task (create)
  parent_id    — Parent item id; containment follows the hierarchy order
  work_item_id — Item id, exact title, or keywords (update, delete)`,
	}, s.handleManage)

	Register(r, ToolDef{
		Name: "jive_get_work_item",
		Description: `Retrieve work items.

Actions:
  get  — Fetch one item by work_item_id (id, exact title, or keywords). Default.
  list — List items with optional filters: type, status, priority, parent_id, limit, offset, sort_by, sort_order.`,
	}, s.handleGet)
}

func (s *Server) registerSearchTools(r *Registry) {
	Register(r, ToolDef{
		Name: "jive_search_content",
		Description: `Search work item content.

Modes (search_type):
  semantic — Embedding similarity over title, description, and tags.
  keyword  — Substring and token matching.
  hybrid   — Both, merged with weighted scores. Default.

Filters narrow by type, status, and priority. Results carry relevance scores; empty queries return no results.`,
	}, s.handleSearch)
}

func (s *Server) registerHierarchyTools(r *Registry) {
	Register(r, ToolDef{
		Name: "jive_get_hierarchy",
		Description: `Navigate and repair work item relationships.

Actions:
  get                    — Walk one relationship from work_item_id. relationship_type picks children, parents, ancestors, descendants, dependencies, dependents, or full_hierarchy (default, a depth-capped tree).
  get_children           — Direct children in sequence order.
  get_dependencies       — Items this one depends on, with missing references flagged.
  add_dependency         — Add a dependency edge from work_item_id to target_id. Cycles are rejected.
  remove_dependency      — Remove the edge from work_item_id to target_id.
  validate               — Check specific items (work_item_ids) for orphans, cycles, and bad references.
  validate_comprehensive — Check the whole namespace.
  cleanup_orphans        — Repair items whose parent vanished: move_to_root (default), delete, or assign_parent with new_parent_id.`,
	}, s.handleHierarchy)

	Register(r, ToolDef{
		Name: "jive_reorder_work_items",
		Description: `Change sibling order and parentage. Sequence numbers follow automatically.

Actions:
  reorder     — Put work_item_ids (all siblings of one parent) in the given order.
  move        — Reparent work_item_id under new_parent_id (null for root), optionally at position.
  swap        — Exchange the positions of work_item_id and swap_with_id.
  recalculate — Rebuild every sequence number from the current tree.`,
	}, s.handleReorder)
}

func (s *Server) registerExecutionTools(r *Registry) {
	Register(r, ToolDef{
		Name: "jive_execute_work_item",
		Description: `Start and control work item executions.

Actions:
  execute  — Start an execution for work_item_id. Fails with incomplete dependencies. Default.
  status   — Fetch an execution by execution_id, or the latest for work_item_id.
  cancel   — Cancel a running execution by execution_id.
  validate — Check readiness without starting: reports blocking dependencies.`,
	}, s.handleExecute)

	Register(r, ToolDef{
		Name: "jive_track_progress",
		Description: `Track progress and report on it.

Actions:
  track     — Set progress (0-100), status, notes, or estimated_hours on work_item_id. Parent progress rolls up unless auto_calculate_progress is false. Default.
  report    — Progress summary for the namespace: counts by status, completion rate, blocked items.
  milestone — Set target_date (YYYY-MM-DD) on work_item_id, or list all milestones when no item is given.
  analytics — Velocity and distribution analytics across the namespace.
  status    — Status detail for one item, including its children's rollup.`,
	}, s.handleProgress)
}

func (s *Server) registerSyncTools(r *Registry) {
	Register(r, ToolDef{
		Name: "jive_sync_data",
		Description: `Move work item data between storage and files, and manage backups.

Actions:
  sync    — Sync the namespace with a file. direction: db_to_file, file_to_db, or bidirectional (default). merge_strategy: overwrite, merge (default), or skip. format: json, yaml, markdown, or csv. Default.
  backup  — Snapshot the namespace (all_namespaces for every one; list_only to list snapshots).
  restore — Restore the namespace from backup_id, or the newest snapshot.
  validate — Compare file and store contents and check hierarchy integrity.
  regenerate_sequence_numbers — Rebuild sequence numbers from the tree.`,
	}, s.handleSync)
}
