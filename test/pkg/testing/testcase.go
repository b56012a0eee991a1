package testing

import (
	"fmt"
	"time"

	"github.com/jivehq/jive/test/pkg/client"
)

// TestCase represents a single test scenario
type TestCase struct {
	Name        string
	Description string
	Tags        []string
	Covers      []string // Coverage annotations like "workitem:create", "search:semantic"
	Setup       func(*TestContext) error
	Execute     func(*TestContext) error
	Teardown    func(*TestContext) error
	Timeout     time.Duration
}

// TestContext provides state and utilities for test execution
type TestContext struct {
	Client       *client.MCPClient
	Assertions   *Assertions
	WorkItemID   string
	CreatedItems []string // Track work item ids for cleanup
	Logs         []string
	Failed       bool
}

// NewTestContext creates a new test context with the given MCP client
func NewTestContext(mcpClient *client.MCPClient) *TestContext {
	ctx := &TestContext{
		Client:       mcpClient,
		CreatedItems: []string{},
		Logs:         []string{},
		Failed:       false,
	}
	ctx.Assertions = NewAssertions(ctx)
	return ctx
}

// Log adds a log message to the test context
func (tc *TestContext) Log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	tc.Logs = append(tc.Logs, msg)
}

// MarkFailed marks the test as failed
func (tc *TestContext) MarkFailed() {
	tc.Failed = true
}

// Cleanup deletes every work item the test created. Items are removed in
// reverse creation order with delete_children set, so a parent created before
// its children takes the subtree with it and the later child deletes turn
// into tolerated not-found errors.
func (tc *TestContext) Cleanup() error {
	tc.Log("Starting cleanup...")

	for i := len(tc.CreatedItems) - 1; i >= 0; i-- {
		id := tc.CreatedItems[i]
		tc.Log("Deleting work item: %s", id)

		result, err := tc.Client.InvokeTool("jive_manage_work_item", map[string]interface{}{
			"action":          "delete",
			"work_item_id":    id,
			"delete_children": true,
		})
		if err != nil {
			tc.Log("Warning: failed to delete work item %s: %v", id, err)
			continue
		}
		if result.IsError {
			// Usually a cascade from an earlier delete already removed it.
			tc.Log("Note: delete of %s reported: %s", id, result.GetToolContent())
		}
	}

	tc.Log("Cleanup complete")
	return nil
}

// Invoke calls a tool and parses its structured envelope. A transport error
// or an unparseable payload is returned as err; a tool-level failure comes
// back as an envelope with Success=false.
func (tc *TestContext) Invoke(tool string, params map[string]interface{}) (*client.Envelope, error) {
	result, err := tc.Client.InvokeTool(tool, params)
	if err != nil {
		return nil, err
	}
	env, err := result.Envelope()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tool, err)
	}
	return env, nil
}

// CreateWorkItem is a helper to create a work item and track it for cleanup.
// Returns the work item ID (UUID) on success.
func (tc *TestContext) CreateWorkItem(itemType, title string) (string, error) {
	return tc.CreateWorkItemWith(map[string]interface{}{
		"action": "create",
		"type":   itemType,
		"title":  title,
	})
}

// CreateChildWorkItem creates a work item under the given parent and tracks
// it for cleanup.
func (tc *TestContext) CreateChildWorkItem(itemType, title, parentID string) (string, error) {
	return tc.CreateWorkItemWith(map[string]interface{}{
		"action":    "create",
		"type":      itemType,
		"title":     title,
		"parent_id": parentID,
	})
}

// CreateWorkItemWith creates a work item from the full parameter map. The
// action key defaults to create when absent.
func (tc *TestContext) CreateWorkItemWith(params map[string]interface{}) (string, error) {
	if _, ok := params["action"]; !ok {
		params["action"] = "create"
	}
	tc.Log("Creating work item: %v", params["title"])

	env, err := tc.Invoke("jive_manage_work_item", params)
	if err != nil {
		return "", fmt.Errorf("failed to create work item: %w", err)
	}
	if !env.Success {
		return "", fmt.Errorf("create work item returned error: %s", env.Error)
	}

	id := ExtractWorkItemID(env)
	if id == "" {
		return "", fmt.Errorf("failed to extract work item ID from response: %s", string(env.Data))
	}

	// Track for cleanup
	tc.CreatedItems = append(tc.CreatedItems, id)
	tc.WorkItemID = id

	tc.Log("Work item created: %v (ID: %s)", params["title"], id)
	return id, nil
}

// ExtractWorkItemID pulls the id out of an envelope whose data is a work item
// object (create and update responses).
func ExtractWorkItemID(env *client.Envelope) string {
	var item struct {
		ID string `json:"id"`
	}
	if err := env.DataAs(&item); err != nil {
		return ""
	}
	return item.ID
}

// TestResult represents the outcome of a test execution
type TestResult struct {
	TestName   string
	Passed     bool
	Duration   time.Duration
	Error      error
	Logs       []string
	Assertions int
	FailedAt   string // Which phase failed: "setup", "execute", "teardown"
}

// Run executes the test case and returns the result
func (t *TestCase) Run(mcpClient *client.MCPClient) *TestResult {
	start := time.Now()
	ctx := NewTestContext(mcpClient)
	result := &TestResult{
		TestName:   t.Name,
		Passed:     true,
		Assertions: 0,
	}

	// Ensure cleanup always runs
	defer func() {
		if err := ctx.Cleanup(); err != nil {
			ctx.Log("Cleanup error: %v", err)
		}
		result.Logs = ctx.Logs
		result.Duration = time.Since(start)
		result.Assertions = ctx.Assertions.Count
	}()

	// Apply timeout if specified
	if t.Timeout > 0 {
		done := make(chan bool, 1)
		go func() {
			if err := t.runPhases(ctx, result); err != nil {
				result.Passed = false
				result.Error = err
			}
			done <- true
		}()

		select {
		case <-done:
			// Test completed
		case <-time.After(t.Timeout):
			result.Passed = false
			result.Error = fmt.Errorf("test timeout after %v", t.Timeout)
			result.FailedAt = "timeout"
		}
	} else {
		if err := t.runPhases(ctx, result); err != nil {
			result.Passed = false
			result.Error = err
		}
	}

	return result
}

// runPhases executes setup, execute, and teardown phases
func (t *TestCase) runPhases(ctx *TestContext, result *TestResult) error {
	if t.Setup != nil {
		ctx.Log("Running setup...")
		if err := t.Setup(ctx); err != nil {
			result.FailedAt = "setup"
			return fmt.Errorf("setup failed: %w", err)
		}
	}

	ctx.Log("Running test...")
	if err := t.Execute(ctx); err != nil {
		result.FailedAt = "execute"
		return fmt.Errorf("test failed: %w", err)
	}

	// Check if any assertions failed
	if ctx.Failed {
		result.FailedAt = "execute"
		return fmt.Errorf("test assertions failed")
	}

	if t.Teardown != nil {
		ctx.Log("Running teardown...")
		if err := t.Teardown(ctx); err != nil {
			result.FailedAt = "teardown"
			return fmt.Errorf("teardown failed: %w", err)
		}
	}

	return nil
}
