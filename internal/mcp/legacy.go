package mcp

import (
	"encoding/json"
	"sync"

	"github.com/jivehq/jive/internal/logger"
)

// legacyTool maps a retired tool name onto a unified tool plus a pure
// argument transform.
type legacyTool struct {
	target    string
	transform func(args map[string]any) map[string]any
}

// RegisterLegacy adds a legacy-name translation. Calls through the legacy
// name behave exactly like calls to the target after the transform, except
// for a one-shot deprecation warning per process.
func (r *Registry) RegisterLegacy(name, target string, transform func(args map[string]any) map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legacy[name] = legacyTool{target: target, transform: transform}
	r.warned[name] = &sync.Once{}
}

// IsLegacy reports whether name is a registered legacy alias.
func (r *Registry) IsLegacy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.legacy[name]
	return ok
}

// translate rewrites a legacy call into its unified form. Unknown names
// pass through untouched.
func (r *Registry) translate(name string, args json.RawMessage) (string, json.RawMessage) {
	r.mu.RLock()
	lt, ok := r.legacy[name]
	once := r.warned[name]
	r.mu.RUnlock()
	if !ok {
		return name, args
	}

	once.Do(func() {
		logger.Warn("⚠️  tool %q is deprecated; use %q instead", name, lt.target)
	})

	m := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &m); err != nil {
			// Leave malformed payloads for the target's own parsing.
			return lt.target, args
		}
	}
	if lt.transform != nil {
		m = lt.transform(m)
	}

	out, err := json.Marshal(m)
	if err != nil {
		return lt.target, args
	}
	return lt.target, out
}

// setAction injects the unified action discriminator.
func setAction(action string) func(map[string]any) map[string]any {
	return func(args map[string]any) map[string]any {
		args["action"] = action
		return args
	}
}

// renameKey moves a field when present, leaving an existing target alone.
func renameKey(args map[string]any, from, to string) {
	if v, ok := args[from]; ok {
		if _, taken := args[to]; !taken {
			args[to] = v
		}
		delete(args, from)
	}
}

// fillKey sets a field only when the caller omitted it.
func fillKey(args map[string]any, key string, value any) {
	if _, ok := args[key]; !ok {
		args[key] = value
	}
}

// chain composes transforms left to right.
func chain(fns ...func(map[string]any) map[string]any) func(map[string]any) map[string]any {
	return func(args map[string]any) map[string]any {
		for _, fn := range fns {
			args = fn(args)
		}
		return args
	}
}

func renaming(from, to string) func(map[string]any) map[string]any {
	return func(args map[string]any) map[string]any {
		renameKey(args, from, to)
		return args
	}
}

func filling(key string, value any) func(map[string]any) map[string]any {
	return func(args map[string]any) map[string]any {
		fillKey(args, key, value)
		return args
	}
}

// registerLegacyNames installs the fixed translation table for tool names
// retired by the consolidation into the eight unified tools.
func registerLegacyNames(r *Registry) {
	// Work-item CRUD.
	r.RegisterLegacy("jive_create_work_item", "jive_manage_work_item", setAction("create"))
	r.RegisterLegacy("jive_update_work_item", "jive_manage_work_item", setAction("update"))
	r.RegisterLegacy("jive_delete_work_item", "jive_manage_work_item", setAction("delete"))
	r.RegisterLegacy("jive_create_task", "jive_manage_work_item",
		chain(setAction("create"), filling("type", "task")))
	r.RegisterLegacy("jive_update_task", "jive_manage_work_item",
		chain(setAction("update"), renaming("task_id", "work_item_id")))
	r.RegisterLegacy("jive_delete_task", "jive_manage_work_item",
		chain(setAction("delete"), renaming("task_id", "work_item_id")))

	// Retrieval.
	r.RegisterLegacy("jive_get_task", "jive_get_work_item",
		chain(setAction("get"), renaming("task_id", "work_item_id")))
	r.RegisterLegacy("jive_list_work_items", "jive_get_work_item", setAction("list"))
	r.RegisterLegacy("jive_search_work_items", "jive_search_content", setAction("search"))
	r.RegisterLegacy("jive_search_tasks", "jive_search_content",
		chain(setAction("search"), filling("type", []any{"task"})))

	// Hierarchy and dependencies.
	r.RegisterLegacy("jive_get_work_item_children", "jive_get_hierarchy", setAction("get_children"))
	r.RegisterLegacy("jive_get_work_item_dependencies", "jive_get_hierarchy", setAction("get_dependencies"))
	r.RegisterLegacy("jive_validate_dependencies", "jive_get_hierarchy", setAction("validate"))

	// Execution.
	r.RegisterLegacy("jive_get_execution_status", "jive_execute_work_item", setAction("status"))
	r.RegisterLegacy("jive_cancel_execution", "jive_execute_work_item", setAction("cancel"))
	r.RegisterLegacy("jive_validate_task_completion", "jive_execute_work_item", setAction("validate"))

	// Progress.
	r.RegisterLegacy("jive_get_workflow_status", "jive_track_progress", setAction("status"))
	r.RegisterLegacy("jive_get_progress_report", "jive_track_progress", setAction("report"))
	r.RegisterLegacy("jive_set_milestone", "jive_track_progress", setAction("milestone"))

	// Sync and backup.
	r.RegisterLegacy("jive_sync_file_to_database", "jive_sync_data",
		chain(setAction("sync"), filling("direction", "file_to_db")))
	r.RegisterLegacy("jive_sync_database_to_file", "jive_sync_data",
		chain(setAction("sync"), filling("direction", "db_to_file")))
	r.RegisterLegacy("jive_get_sync_status", "jive_sync_data", setAction("validate"))
	r.RegisterLegacy("jive_backup_data", "jive_sync_data", setAction("backup"))
	r.RegisterLegacy("jive_restore_data", "jive_sync_data", setAction("restore"))

	// Ordering.
	r.RegisterLegacy("jive_reorder_tasks", "jive_reorder_work_items",
		chain(setAction("reorder"), renaming("task_ids", "work_item_ids")))
	r.RegisterLegacy("jive_move_task", "jive_reorder_work_items",
		chain(setAction("move"), renaming("task_id", "work_item_id")))
}
