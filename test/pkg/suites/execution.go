package suites

import (
	"fmt"
	"time"

	testpkg "github.com/jivehq/jive/test/pkg/testing"
)

// waitForExecution polls execution status until the record reaches a
// terminal state or the deadline passes.
func waitForExecution(ctx *testpkg.TestContext, executionID string, deadline time.Duration) (string, error) {
	end := time.Now().Add(deadline)
	for {
		env, err := ctx.Invoke("jive_execute_work_item", map[string]interface{}{
			"action":       "status",
			"execution_id": executionID,
		})
		if err != nil {
			return "", err
		}
		if !env.Success {
			return "", fmt.Errorf("status failed: %s", env.Error)
		}

		var rec struct {
			Status string `json:"status"`
		}
		if err := env.DataAs(&rec); err != nil {
			return "", err
		}
		switch rec.Status {
		case "succeeded", "failed", "cancelled":
			return rec.Status, nil
		}

		if time.Now().After(end) {
			return rec.Status, fmt.Errorf("execution %s still %s after %v", executionID, rec.Status, deadline)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

// GetExecutionTests covers jive_execute_work_item: readiness validation, the
// run lifecycle, and cancellation rules.
func GetExecutionTests() []*testpkg.TestCase {
	return []*testpkg.TestCase{
		{
			Name:        "test_execution_readiness",
			Description: "Items with incomplete dependencies are not ready and refuse to run",
			Tags:        []string{"execution"},
			Covers:      []string{"execution:validate"},
			Timeout:     30 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				blocker, err := ctx.CreateWorkItem("task", uniqueTitle("Blocking migration"))
				if err != nil {
					return err
				}
				blocked, err := ctx.CreateWorkItemWith(map[string]interface{}{
					"type":         "task",
					"title":        uniqueTitle("Blocked rollout"),
					"dependencies": []string{blocker},
				})
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_execute_work_item", map[string]interface{}{
					"action":       "validate",
					"work_item_id": blocked,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Validate should succeed")

				var readiness struct {
					Ready     bool     `json:"ready"`
					BlockedBy []string `json:"blocked_by"`
				}
				if err := env.DataAs(&readiness); err != nil {
					return err
				}
				ctx.Assertions.AssertFalse(readiness.Ready, "The rollout should not be ready")
				ctx.Assertions.AssertEqual(1, len(readiness.BlockedBy), "The migration should be the blocker")

				env, err = ctx.Invoke("jive_execute_work_item", map[string]interface{}{
					"work_item_id": blocked,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "EXECUTION_NOT_READY", "Execute should refuse a blocked item")

				// Completing the dependency unblocks it.
				env, err = ctx.Invoke("jive_track_progress", map[string]interface{}{
					"work_item_id": blocker,
					"progress":     100,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Completing the blocker should succeed")

				env, err = ctx.Invoke("jive_execute_work_item", map[string]interface{}{
					"action":       "validate",
					"work_item_id": blocked,
				})
				if err != nil {
					return err
				}
				if err := env.DataAs(&readiness); err != nil {
					return err
				}
				ctx.Assertions.AssertTrue(readiness.Ready, "The rollout should be ready once the blocker completes")
				return nil
			},
		},

		{
			Name:        "test_execution_lifecycle",
			Description: "Execute registers a record that runs to a terminal state",
			Tags:        []string{"execution"},
			Covers:      []string{"execution:execute", "execution:status"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				id, err := ctx.CreateWorkItem("task", uniqueTitle("Runnable task"))
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_execute_work_item", map[string]interface{}{
					"action":       "execute",
					"work_item_id": id,
					"agent_id":     "jive-test",
					"details":      "integration run",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Execute should accept a ready item")

				var rec struct {
					ID         string `json:"id"`
					WorkItemID string `json:"work_item_id"`
					Status     string `json:"status"`
					AgentID    string `json:"agent_id"`
				}
				if err := env.DataAs(&rec); err != nil {
					return err
				}
				ctx.Assertions.AssertNotEmpty(rec.ID, "Execution should get an id")
				ctx.Assertions.AssertEqual(id, rec.WorkItemID, "Record should reference the item")
				ctx.Assertions.AssertEqual("pending", rec.Status, "Fresh executions start pending")
				ctx.Assertions.AssertEqual("jive-test", rec.AgentID, "Record should carry the agent id")

				final, err := waitForExecution(ctx, rec.ID, 15*time.Second)
				if err != nil {
					return err
				}
				ctx.Assertions.AssertEqual("succeeded", final, "The run should succeed")

				// Starting a run moves a not-started item into progress.
				env, err = ctx.Invoke("jive_get_work_item", map[string]interface{}{
					"work_item_id": id,
				})
				if err != nil {
					return err
				}
				var data struct {
					Item struct {
						Status string `json:"status"`
					} `json:"item"`
				}
				if err := env.DataAs(&data); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual("in_progress", data.Item.Status, "The item should be in progress")

				// status by work_item_id returns the same, latest record.
				env, err = ctx.Invoke("jive_execute_work_item", map[string]interface{}{
					"action":       "status",
					"work_item_id": id,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Status by item should succeed")
				var latest struct {
					ID string `json:"id"`
				}
				if err := env.DataAs(&latest); err != nil {
					return err
				}
				ctx.Assertions.AssertEqual(rec.ID, latest.ID, "Latest record should be this run")
				return nil
			},
		},

		{
			Name:        "test_execution_cancel_rules",
			Description: "Terminal executions cannot be cancelled twice over",
			Tags:        []string{"execution"},
			Covers:      []string{"execution:cancel"},
			Timeout:     60 * time.Second,
			Execute: func(ctx *testpkg.TestContext) error {
				id, err := ctx.CreateWorkItem("task", uniqueTitle("Cancel fixture"))
				if err != nil {
					return err
				}

				env, err := ctx.Invoke("jive_execute_work_item", map[string]interface{}{
					"work_item_id": id,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertSuccess(env, "Execute should start")

				var rec struct {
					ID string `json:"id"`
				}
				if err := env.DataAs(&rec); err != nil {
					return err
				}

				final, err := waitForExecution(ctx, rec.ID, 15*time.Second)
				if err != nil {
					return err
				}
				ctx.Assertions.AssertEqual("succeeded", final, "The run should finish first")

				env, err = ctx.Invoke("jive_execute_work_item", map[string]interface{}{
					"action":       "cancel",
					"execution_id": rec.ID,
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "INVALID_STATE", "A finished run should refuse cancellation")

				env, err = ctx.Invoke("jive_execute_work_item", map[string]interface{}{
					"action":       "status",
					"execution_id": "no-such-execution",
				})
				if err != nil {
					return err
				}
				ctx.Assertions.AssertFailure(env, "EXECUTION_NOT_FOUND", "Unknown execution ids should 404")
				return nil
			},
		},
	}
}
