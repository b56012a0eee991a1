package suites

import (
	"fmt"
	"time"

	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// GetLegacyTests exercises the retired tool names that translate onto the
// unified tools: injected actions, renamed keys, and filled defaults.
func GetLegacyTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_legacy_task_crud",
			Description: "The jive_*_task aliases inject actions and rename task_id",
			Tags:        []string{"legacy"},
			Covers:      []string{"legacy:crud"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				env, err := ctx.Invoke("jive_create_task", map[string]interface{}{
					"title": uniqueTitle("Ship the importer"),
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "create alias works without type or action")
				var created struct {
					ID       string `json:"id"`
					ItemType string `json:"item_type"`
					Status   string `json:"status"`
				}
				if err := env.DataAs(&created); err != nil {
					return fmt.Errorf("created item: %w", err)
				}
				ctx.Assertions.AssertEqual("task", created.ItemType, "alias fills the task type")
				ctx.CreatedItems = append(ctx.CreatedItems, created.ID)

				env, err = ctx.Invoke("jive_update_task", map[string]interface{}{
					"task_id": created.ID,
					"status":  "in_progress",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "update alias accepts task_id")
				var updated struct {
					Status string `json:"status"`
				}
				if err := env.DataAs(&updated); err != nil {
					return fmt.Errorf("updated item: %w", err)
				}
				ctx.Assertions.AssertEqual("in_progress", updated.Status, "status change applied")

				env, err = ctx.Invoke("jive_get_task", map[string]interface{}{
					"task_id": created.ID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "get alias accepts task_id")
				fetched, err := fetchItem(env)
				if err != nil {
					return fmt.Errorf("fetched item: %w", err)
				}
				ctx.Assertions.AssertEqual(created.ID, fetched.ID, "get returns the same item")

				env, err = ctx.Invoke("jive_delete_task", map[string]interface{}{
					"task_id": created.ID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "delete alias accepts task_id")

				env, err = ctx.Invoke("jive_get_task", map[string]interface{}{
					"task_id": created.ID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "WORK_ITEM_NOT_FOUND", "deleted task is gone")
				return nil
			},
		},
		{
			Name:        "test_legacy_names_not_listed",
			Description: "Aliases stay callable but do not appear in tools/list",
			Tags:        []string{"legacy", "protocol"},
			Timeout:     15 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				tools, err := ctx.Client.ListTools()
				if err != nil {
					return err
				}
				for _, tool := range tools {
					switch tool.Name {
					case "jive_create_task", "jive_list_work_items", "jive_reorder_tasks":
						ctx.Assertions.Fail("legacy name listed: " + tool.Name)
					}
				}
				ctx.Assertions.AssertGreaterOrEqual(len(tools), len(unifiedTools), "unified tools are listed")
				return nil
			},
		},
		{
			Name:        "test_legacy_search_and_list",
			Description: "jive_search_tasks narrows to tasks and jive_list_work_items honours filters",
			Tags:        []string{"legacy", "search"},
			Covers:      []string{"legacy:search"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				token := uniqueToken()
				taskID, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":  "task",
					"title": token + " indexing job",
				})
				if err != nil {
					return err
				}
				epicID, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":  "epic",
					"title": token + " indexing initiative",
				})
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_search_tasks", map[string]interface{}{
					"query":       token,
					"search_type": "keyword",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "task search alias works")
				var hits searchPage
				if err := env.DataAs(&hits); err != nil {
					return fmt.Errorf("search result: %w", err)
				}
				ctx.Assertions.AssertTrue(hits.containsItem(taskID), "the task matches")
				ctx.Assertions.AssertFalse(hits.containsItem(epicID), "the filled type filter drops the epic")

				env, err = ctx.Invoke("jive_list_work_items", map[string]interface{}{
					"filters": map[string]interface{}{
						"type": []string{"epic"},
					},
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "list alias works")
				var page struct {
					Items []struct {
						ID       string `json:"id"`
						ItemType string `json:"item_type"`
					} `json:"items"`
					Total int `json:"total"`
				}
				if err := env.DataAs(&page); err != nil {
					return fmt.Errorf("list result: %w", err)
				}
				ctx.Assertions.AssertGreaterOrEqual(page.Total, 1, "the epic is listed")
				for _, item := range page.Items {
					if item.ItemType != "epic" {
						ctx.Assertions.Fail("type filter leaked " + item.ItemType)
					}
				}
				return nil
			},
		},
		{
			Name:        "test_legacy_hierarchy_and_progress",
			Description: "Hierarchy and progress aliases route to the unified handlers",
			Tags:        []string{"legacy"},
			Covers:      []string{"legacy:hierarchy", "legacy:progress"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				feature, err := ctx.CreateWorkItem("feature", uniqueTitle("Audit trail"))
				if err != nil {
					return err
				}
				story, err := ctx.CreateChildWorkItem("story", uniqueTitle("Audit export"), feature)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_get_work_item_children", map[string]interface{}{
					"work_item_id": feature,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "children alias works")
				var children struct {
					Items []outlineItem `json:"items"`
					Total int           `json:"total"`
				}
				if err := env.DataAs(&children); err != nil {
					return fmt.Errorf("children: %w", err)
				}
				ctx.Assertions.AssertEqual(1, children.Total, "one child")
				if len(children.Items) == 1 {
					ctx.Assertions.AssertEqual(story, children.Items[0].ID, "the story is the child")
				}

				env, err = ctx.Invoke("jive_get_progress_report", map[string]interface{}{})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "report alias works")
				var report struct {
					TotalItems int            `json:"total_items"`
					ByType     map[string]int `json:"by_type"`
				}
				if err := env.DataAs(&report); err != nil {
					return fmt.Errorf("report: %w", err)
				}
				ctx.Assertions.AssertGreaterOrEqual(report.TotalItems, 2, "report counts the fixtures")
				ctx.Assertions.AssertGreaterOrEqual(report.ByType["story"], 1, "report breaks down by type")

				env, err = ctx.Invoke("jive_get_execution_status", map[string]interface{}{
					"execution_id": "no-such-execution",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "EXECUTION_NOT_FOUND", "execution alias reaches the handler")
				return nil
			},
		},
		{
			Name:        "test_legacy_reorder_and_sync",
			Description: "jive_reorder_tasks renames task_ids and the sync aliases fill directions",
			Tags:        []string{"legacy", "sync"},
			Covers:      []string{"legacy:reorder", "legacy:sync"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				feature, err := ctx.CreateWorkItem("feature", uniqueTitle("Notifications"))
				if err != nil {
					return err
				}
				first, err := ctx.CreateChildWorkItem("story", uniqueTitle("Email channel"), feature)
				if err != nil {
					return err
				}
				second, err := ctx.CreateChildWorkItem("story", uniqueTitle("Slack channel"), feature)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_reorder_tasks", map[string]interface{}{
					"task_ids": []string{second, first},
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "reorder alias works")
				var page struct {
					Items []outlineItem `json:"items"`
					Total int           `json:"total"`
				}
				if err := env.DataAs(&page); err != nil {
					return fmt.Errorf("reorder result: %w", err)
				}
				ctx.Assertions.AssertEqual(2, page.Total, "both siblings return")
				if len(page.Items) == 2 {
					ctx.Assertions.AssertEqual(second, page.Items[0].ID, "renamed ids drive the order")
				}

				ns := uniqueNamespace("jive-legacy")
				id, err := createInNamespace(ctx, ns, "task", "Legacy export fixture")
				if err != nil {
					return err
				}
				defer deleteInNamespace(ctx, ns, id)

				env, err = ctx.Invoke("jive_sync_database_to_file", withNamespace(ns, map[string]interface{}{
					"format": "json",
				}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "export alias works")
				var report syncReport
				if err := env.DataAs(&report); err != nil {
					return fmt.Errorf("export report: %w", err)
				}
				ctx.Assertions.AssertEqual("db_to_file", report.Direction, "alias fills the direction")
				ctx.Assertions.AssertEqual(1, report.Exported, "the fixture is exported")

				env, err = ctx.Invoke("jive_get_sync_status", withNamespace(ns, map[string]interface{}{}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "sync status alias works")
				var status dataReport
				if err := env.DataAs(&status); err != nil {
					return fmt.Errorf("status report: %w", err)
				}
				ctx.Assertions.AssertTrue(status.FileExists, "status sees the exported file")
				ctx.Assertions.AssertTrue(status.InSync, "file matches the store")

				env, err = ctx.Invoke("jive_backup_data", withNamespace(ns, map[string]interface{}{}))
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "backup alias works")
				var snap backupSnapshot
				if err := env.DataAs(&snap); err != nil {
					return fmt.Errorf("snapshot: %w", err)
				}
				ctx.Assertions.AssertEqual(1, snap.Items, "snapshot counts the fixture")
				return nil
			},
		},
	}
}
