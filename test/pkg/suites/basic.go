package suites

import (
	"fmt"
	"time"

	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// unifiedTools is the tool surface every server build must expose.
var unifiedTools = []string{
	"jive_manage_work_item",
	"jive_get_work_item",
	"jive_search_content",
	"jive_get_hierarchy",
	"jive_execute_work_item",
	"jive_track_progress",
	"jive_sync_data",
	"jive_reorder_work_items",
}

// uniqueTitle returns a title no other run can have produced, so assertions
// against a shared server only match this test's items.
func uniqueTitle(prefix string) string {
	return fmt.Sprintf("%s %d", prefix, time.Now().UnixNano())
}

// GetBasicTests returns basic smoke tests
func GetBasicTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_connection",
			Description: "Verify MCP server connection and tool listing",
			Tags:        []string{"basic", "smoke"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				tools, err := ctx.Client.ListTools()
				ctx.Assertions.AssertNoError(err, "Should list tools without error")
				if err != nil {
					return err
				}

				ctx.Assertions.AssertGreaterOrEqual(len(tools), len(unifiedTools),
					"Should expose at least the unified tool set")

				byName := map[string]bool{}
				for _, tool := range tools {
					byName[tool.Name] = true
					ctx.Assertions.AssertNotEmpty(tool.Description, "Tool "+tool.Name+" should carry a description")
				}
				for _, name := range unifiedTools {
					ctx.Assertions.AssertTrue(byName[name], "Should expose "+name)
				}
				return nil
			},
		},

		{
			Name:        "test_session_handshake",
			Description: "Verify the initialize handshake assigned a session",
			Tags:        []string{"basic", "smoke", "session"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				ctx.Assertions.AssertNotEmpty(ctx.Client.SessionID(), "Connect should have assigned a session id")

				err := ctx.Client.Ping()
				ctx.Assertions.AssertNoError(err, "Ping should succeed on an active session")
				return nil
			},
		},

		{
			Name:        "test_work_item_roundtrip",
			Description: "Create a work item and fetch it back by id",
			Tags:        []string{"basic", "smoke", "workitem"},
			Covers:      []string{"workitem:create", "workitem:get"},
			Timeout:     15 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				title := uniqueTitle("Smoke task")
				id, err := ctx.CreateWorkItem("task", title)
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"action":       "get",
					"work_item_id": id,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Get should succeed for a fresh item")

				var data struct {
					Item struct {
						ID             string  `json:"id"`
						Title          string  `json:"title"`
						ItemType       string  `json:"item_type"`
						Status         string  `json:"status"`
						SequenceNumber string  `json:"sequence_number"`
						Progress       float64 `json:"progress_percentage"`
					} `json:"item"`
				}
				if err := env.DataAs(&data); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(id, data.Item.ID, "Fetched item should have the created id")
				ctx.Assertions.AssertEqual(title, data.Item.Title, "Fetched item should keep its title")
				ctx.Assertions.AssertEqual("task", data.Item.ItemType, "Fetched item should keep its type")
				ctx.Assertions.AssertEqual("not_started", data.Item.Status, "New items default to not_started")
				ctx.Assertions.AssertNotEmpty(data.Item.SequenceNumber, "New items get a sequence number")
				return nil
			},
		},

		{
			Name:        "test_unknown_action",
			Description: "Unified tools reject unknown action values",
			Tags:        []string{"basic", "validation"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				env, err := ctx.Invoke("jive_manage_work_item", map[string]interface{}{
					"action": "explode",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "INVALID_ACTION", "Unknown action should return INVALID_ACTION")
				ctx.Assertions.AssertContains(env.Error, "explode", "Error should name the rejected action")
				return nil
			},
		},

		{
			Name:        "test_unknown_tool",
			Description: "Calling a tool that does not exist returns a JSON-RPC error",
			Tags:        []string{"basic", "validation"},
			Timeout:     10 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				_, err := ctx.Client.InvokeTool("jive_no_such_tool", map[string]interface{}{})
				ctx.Assertions.AssertError(err, "Unknown tool should be rejected at the protocol layer")
				return nil
			},
		},
	}
}
