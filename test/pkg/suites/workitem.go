package suites

import (
	"time"

	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// GetWorkItemTests covers create, update, and delete through
// jive_manage_work_item, plus list filtering through jive_get_work_item.
func GetWorkItemTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_work_item_lifecycle",
			Description: "Create, update, and delete a work item",
			Tags:        []string{"workitem"},
			Covers:      []string{"workitem:create", "workitem:update", "workitem:delete"},
			Timeout:     20 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				id, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":        "story",
					"title":       uniqueTitle("Checkout flow"),
					"description": "Customers can pay with a stored card",
					"priority":    "high",
					"tags":        []string{"payments", "checkout"},
				})
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action":       "update",
					"work_item_id": id,
					"status":       "in_progress",
					"priority":     "critical",
					"description":  "Customers can pay with a stored card or a new one",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Update should succeed")

				var item struct {
					Status   string `json:"status"`
					Priority string `json:"priority"`
				}
				if err := env.DataAs(&item); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual("in_progress", item.Status, "Status should move to in_progress")
				ctx.Assertions.AssertEqual("critical", item.Priority, "Priority should move to critical")

				env, err = ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action":       "delete",
					"work_item_id": id,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Delete should succeed")

				env, err = ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"work_item_id": id,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "WORK_ITEM_NOT_FOUND", "Deleted item should be gone")
				return nil
			},
		},

		{
			Name:        "test_create_validation",
			Description: "Create rejects bad types, titles, and hierarchy placements",
			Tags:        []string{"workitem", "validation"},
			Covers:      []string{"workitem:create"},
			Timeout:     20 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				env, err := ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action": "create",
					"type":   "saga",
					"title":  uniqueTitle("Bad type"),
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "", "Unknown item type should be rejected")

				env, err = ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action": "create",
					"type":   "task",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "", "Missing title should be rejected")

				// A task may only live under a story.
				initiativeID, err := ctx.CreateWorkItem("initiative", uniqueTitle("Platform revamp"))
				if err != nil {
					return err
				}
				env, err = ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action":    "create",
					"type":      "task",
					"title":     uniqueTitle("Misplaced task"),
					"parent_id": initiativeID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "INVALID_HIERARCHY", "Task under initiative should be rejected")
				return nil
			},
		},

		{
			Name:        "test_delete_cascade",
			Description: "delete_children removes the subtree in one call",
			Tags:        []string{"workitem"},
			Covers:      []string{"workitem:delete"},
			Timeout:     20 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				storyID, err := ctx.CreateWorkItem("story", uniqueTitle("Cascade story"))
				if err != nil {
					return err
				}
				taskID, err := ctx.CreateChildWorkItem("task", uniqueTitle("Cascade task"), storyID)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action":          "delete",
					"work_item_id":    storyID,
					"delete_children": true,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Cascading delete should succeed")

				var res struct {
					DeletedIDs []string `json:"deleted_ids"`
				}
				if err := env.DataAs(&res); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(2, len(res.DeletedIDs), "Cascade should remove parent and child")

				env, err = ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"work_item_id": taskID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "WORK_ITEM_NOT_FOUND", "Child should be gone after cascade")
				return nil
			},
		},

		{
			Name:        "test_delete_orphans_children",
			Description: "Plain delete leaves children behind as orphans that validate flags",
			Tags:        []string{"workitem", "hierarchy"},
			Covers:      []string{"workitem:delete", "hierarchy:validate", "hierarchy:cleanup_orphans"},
			Timeout:     20 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				storyID, err := ctx.CreateWorkItem("story", uniqueTitle("Orphan parent"))
				if err != nil {
					return err
				}
				taskID, err := ctx.CreateChildWorkItem("task", uniqueTitle("Orphan child"), storyID)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action":       "delete",
					"work_item_id": storyID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Plain delete of the parent should succeed")

				env, err = ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":        "validate",
					"work_item_ids": []string{taskID},
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Validate should run")

				var report struct {
					IsValid bool     `json:"is_valid"`
					Orphans []string `json:"orphans"`
				}
				if err := env.DataAs(&report); err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(report.IsValid, "Report should flag the orphan")
				ctx.Assertions.AssertEqual(1, len(report.Orphans), "The child should be the orphan")

				env, err = ctx.Invoke("jive_get_hierarchy", map[string]interface{}{
					"action":         "cleanup_orphans",
					"cleanup_action": "move_to_root",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Orphan cleanup should succeed")

				env, err = ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"work_item_id": taskID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "The orphan should survive cleanup")

				var data struct {
					Item struct {
						ParentID *string `json:"parent_id"`
					} `json:"item"`
				}
				if err := env.DataAs(&data); err != nil {
					return err
				}
				ctx.Assertions.AssertTrue(data.Item.ParentID == nil, "Cleanup should detach the orphan to root")
				return nil
			},
		},

		{
			Name:        "test_resolve_by_title",
			Description: "Work item references accept an exact title instead of an id",
			Tags:        []string{"workitem"},
			Covers:      []string{"workitem:get"},
			Timeout:     15 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				title := uniqueTitle("Rename billing service")
				id, err := ctx.CreateWorkItem("task", title)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"work_item_id": title,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Get by exact title should succeed")

				var data struct {
					Item struct {
						ID string `json:"id"`
					} `json:"item"`
				}
				if err := env.DataAs(&data); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(id, data.Item.ID, "Title lookup should resolve to the created item")
				return nil
			},
		},

		{
			Name:        "test_list_with_filters",
			Description: "List honours type, status, and parent filters",
			Tags:        []string{"workitem", "list"},
			Covers:      []string{"workitem:list"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				storyID, err := ctx.CreateWorkItem("story", uniqueTitle("Filter fixture story"))
				if err != nil {
					return err
				}
				doneID, err := ctx.CreateChildWorkItem("task", uniqueTitle("Done fixture"), storyID)
				if err != nil {
					return err
				}
				if _, err := ctx.CreateChildWorkItem("task", uniqueTitle("Open fixture"), storyID); err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action":       "update",
					"work_item_id": doneID,
					"status":       "completed",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Marking fixture completed should succeed")

				env, err = ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"action": "list",
					"filters": map[string]interface{}{
						"parent_id": storyID,
						"status":    []string{"completed"},
					},
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Filtered list should succeed")

				var page struct {
					Items []struct {
						ID     string `json:"id"`
						Status string `json:"status"`
					} `json:"items"`
					Total int `json:"total"`
				}
				if err := env.DataAs(&page); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(1, page.Total, "Only the completed child should match")
				if len(page.Items) == 1 {
					ctx.Assertions.AssertEqual(doneID, page.Items[0].ID, "Match should be the completed fixture")
					ctx.Assertions.AssertEqual("completed", page.Items[0].Status, "Match should carry its status")
				}
				return nil
			},
		},
	}
}
