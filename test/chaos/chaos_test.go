// Package chaos provides chaos testing for the Jive MCP server.
//
// These tests verify graceful degradation under failure conditions.
// Run with: go test -v -tags=chaos ./test/chaos/... -timeout 30m
//
// WARNING: Some tests mutate the server's data directory and may affect
// system state. Run in an isolated environment.
package chaos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Config for chaos tests
type Config struct {
	ServerURL string
	DataDir   string
}

func getConfig() Config {
	serverURL := os.Getenv("JIVE_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:3454"
	}

	return Config{
		ServerURL: serverURL,
		DataDir:   os.Getenv("JIVE_DATA_DIR"),
	}
}

// MCPClient for chaos testing. Sessionless on purpose: every call is one
// bare JSON-RPC POST so a wedged session table cannot mask server state.
type MCPClient struct {
	baseURL string
	client  *http.Client
}

func NewMCPClient(baseURL string) *MCPClient {
	return &MCPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *MCPClient) Call(ctx context.Context, tool string, params interface{}) (json.RawMessage, error) {
	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      time.Now().UnixNano(),
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      tool,
			"arguments": params,
		},
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// TestCorruptNamespaceMetadata verifies the server handles a mangled
// namespace metadata file gracefully.
func TestCorruptNamespaceMetadata(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()
	if cfg.DataDir == "" {
		t.Skip("JIVE_DATA_DIR not set")
	}

	// Create a namespace directory with corrupt metadata
	testNS := "chaos-corrupt-test"
	nsDir := filepath.Join(cfg.DataDir, "namespaces", testNS)

	// Setup
	if err := os.MkdirAll(nsDir, 0o755); err != nil {
		t.Fatalf("Failed to create test namespace dir: %v", err)
	}
	defer os.RemoveAll(nsDir)

	// Write corrupt metadata
	metadataPath := filepath.Join(nsDir, ".namespace_metadata")
	if err := os.WriteFile(metadataPath, []byte("{ invalid json }}}"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupt metadata: %v", err)
	}

	// Verify server returns error, not crash
	client := NewMCPClient(cfg.ServerURL + "/mcp")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.Call(ctx, "jive_get_work_item", map[string]interface{}{
		"action":    "list",
		"namespace": testNS,
	})

	// Should get an error, not a crash
	if err == nil {
		t.Log("Server handled corrupt metadata gracefully (returned success, possibly rebuilt)")
	} else if strings.Contains(err.Error(), "corrupt") || strings.Contains(err.Error(), "invalid") || strings.Contains(err.Error(), "failed") {
		t.Logf("Server returned expected error: %v", err)
	} else {
		t.Logf("Server returned error (acceptable): %v", err)
	}

	// Verify server is still responsive
	resp, err := http.Get(cfg.ServerURL + "/health")
	if err != nil {
		t.Fatalf("Server crashed or unresponsive after corrupt metadata test: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Server unhealthy after corrupt metadata test: %d", resp.StatusCode)
	}
	t.Log("Server remained healthy after corrupt metadata test")
}

// TestGarbageArguments verifies malformed tool calls return errors without
// taking the server down.
func TestGarbageArguments(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()

	client := NewMCPClient(cfg.ServerURL + "/mcp")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	calls := []struct {
		tool   string
		params map[string]interface{}
	}{
		{"jive_get_work_item", map[string]interface{}{"work_item_id": strings.Repeat("x", 4096)}},
		{"jive_manage_work_item", map[string]interface{}{"action": "create", "type": "galaxy", "title": "chaos"}},
		{"jive_sync_data", map[string]interface{}{"action": "restore", "backup_id": "nonexistent"}},
		{"jive_reorder_work_items", map[string]interface{}{"action": "move", "work_item_id": "missing", "position": -99}},
	}

	for _, c := range calls {
		if _, err := client.Call(ctx, c.tool, c.params); err != nil {
			t.Logf("%s returned transport error (acceptable): %v", c.tool, err)
		} else {
			t.Logf("%s returned a response envelope", c.tool)
		}
	}

	// Verify server health
	resp, err := http.Get(cfg.ServerURL + "/health")
	if err != nil {
		t.Fatalf("Server unresponsive after garbage arguments test: %v", err)
	}
	resp.Body.Close()
	t.Log("Server remained healthy after garbage arguments test")
}

// TestConcurrentWrites verifies data integrity under concurrent writes to
// one namespace.
func TestConcurrentWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()

	client := NewMCPClient(cfg.ServerURL + "/mcp")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A fresh namespace keeps the blast radius contained
	testNS := fmt.Sprintf("chaos-concurrent-%d", time.Now().UnixNano())

	// Concurrent creates against one SQLite store
	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			_, err := client.Call(ctx, "jive_manage_work_item", map[string]interface{}{
				"action":    "create",
				"type":      "task",
				"title":     fmt.Sprintf("chaos writer %d", idx),
				"namespace": testNS,
			})
			done <- err
		}(i)
	}

	// Collect results
	errors := 0
	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			errors++
			t.Logf("Concurrent request %d error: %v", i, err)
		}
	}

	if errors > 2 {
		t.Errorf("Too many errors in concurrent access: %d/10", errors)
	}

	// The writes all landed
	result, err := client.Call(ctx, "jive_get_work_item", map[string]interface{}{
		"action":    "list",
		"namespace": testNS,
	})
	if err != nil {
		t.Errorf("List after concurrent writes failed: %v", err)
	} else {
		t.Logf("List after concurrent writes: %d bytes", len(result))
	}

	// Cleanup - delete the namespace over the REST surface
	req, _ := http.NewRequest(http.MethodDelete, cfg.ServerURL+"/namespaces/"+testNS, nil)
	if resp, err := http.DefaultClient.Do(req); err == nil {
		resp.Body.Close()
	}

	// Verify server health
	resp, err := http.Get(cfg.ServerURL + "/health")
	if err != nil {
		t.Fatalf("Server unresponsive after concurrent writes: %v", err)
	}
	resp.Body.Close()
	t.Log("Server remained healthy after concurrent writes test")
}

// TestNetworkTimeout verifies server handles slow clients
func TestNetworkTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	cfg := getConfig()

	// Use very short timeout
	client := &http.Client{Timeout: 1 * time.Millisecond}

	// This should timeout, not crash server
	_, err := client.Get(cfg.ServerURL + "/health")
	if err == nil {
		t.Log("Request succeeded despite short timeout")
	} else {
		t.Logf("Expected timeout: %v", err)
	}

	// Verify server is still responding to normal requests
	normalClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := normalClient.Get(cfg.ServerURL + "/health")
	if err != nil {
		t.Fatalf("Server unresponsive after timeout test: %v", err)
	}
	resp.Body.Close()
	t.Log("Server remained healthy after timeout test")
}

// TestDatabaseFileRemoved verifies behavior when a namespace database
// disappears out from under the server.
// Note: the open pool keeps the unlinked inode alive on Linux, so reads may
// keep succeeding until the store is reopened. Either way the server must
// not crash.
func TestDatabaseFileRemoved(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	if os.Getenv("CHAOS_DB_TEST") != "1" {
		t.Skip("Set CHAOS_DB_TEST=1 to run database removal tests (mutates data dir)")
	}

	cfg := getConfig()
	if cfg.DataDir == "" {
		t.Skip("JIVE_DATA_DIR not set")
	}

	client := NewMCPClient(cfg.ServerURL + "/mcp")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Seed a namespace so its database exists
	testNS := fmt.Sprintf("chaos-dbloss-%d", time.Now().UnixNano())
	if _, err := client.Call(ctx, "jive_manage_work_item", map[string]interface{}{
		"action":    "create",
		"type":      "task",
		"title":     "doomed item",
		"namespace": testNS,
	}); err != nil {
		t.Fatalf("Failed to seed namespace: %v", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "namespaces", testNS, "jive.db")
	if _, err := os.Stat(dbPath); err != nil {
		t.Skipf("Database file not where expected: %v", err)
	}

	t.Logf("Removing %s", dbPath)
	if err := os.Remove(dbPath); err != nil {
		t.Fatalf("Failed to remove database file: %v", err)
	}
	defer os.RemoveAll(filepath.Join(cfg.DataDir, "namespaces", testNS))

	// Calls may succeed (open handle) or error (reopened store); both are
	// acceptable as long as the process survives.
	if _, err := client.Call(ctx, "jive_get_work_item", map[string]interface{}{
		"action":    "list",
		"namespace": testNS,
	}); err != nil {
		t.Logf("List after db removal errored (acceptable): %v", err)
	} else {
		t.Log("List after db removal succeeded via the open handle")
	}

	// Verify server health
	resp, err := http.Get(cfg.ServerURL + "/health")
	if err != nil {
		t.Fatalf("Server unresponsive after database removal: %v", err)
	}
	resp.Body.Close()
	t.Log("Server remained healthy after database removal test")
}

// TestGracefulShutdown verifies clean shutdown behavior
func TestGracefulShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	t.Log("Graceful shutdown test requires manual verification:")
	t.Log("1. Start server: go run ./cmd/jive")
	t.Log("2. Open a few sessions and start an execution")
	t.Log("3. Send SIGTERM: kill -TERM <pid>")
	t.Log("4. Verify logs show clean shutdown")
	t.Log("5. Verify no data corruption")
	t.Skip("Manual test - see instructions above")
}

// TestDiskFull simulates disk full condition
func TestDiskFull(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chaos test in short mode")
	}

	if os.Getenv("CHAOS_DISK_TEST") != "1" {
		t.Skip("Set CHAOS_DISK_TEST=1 to run disk full tests (may fill disk)")
	}

	cfg := getConfig()
	if cfg.DataDir == "" {
		t.Skip("JIVE_DATA_DIR not set")
	}

	// Create large file to fill disk (careful!)
	t.Log("WARNING: This test will attempt to fill disk space")
	t.Log("Ensure you have monitoring and can recover")
	t.Skip("Dangerous test - uncomment to run")

	// Uncomment below to actually run:
	/*
		fillFile := filepath.Join(cfg.DataDir, "chaos-fill.tmp")
		defer os.Remove(fillFile)

		f, err := os.Create(fillFile)
		if err != nil {
			t.Fatalf("Could not create fill file: %v", err)
		}
		defer f.Close()

		// Write until disk full
		buf := make([]byte, 1024*1024) // 1MB
		for {
			_, err := f.Write(buf)
			if err != nil {
				t.Logf("Disk full: %v", err)
				break
			}
		}

		// Verify server returns error, not crash
		client := NewMCPClient(cfg.ServerURL + "/mcp")
		_, err = client.Call(context.Background(), "jive_manage_work_item", map[string]interface{}{
			"action": "create",
			"type":   "task",
			"title":  "chaos-diskfull-test",
		})
		if err != nil {
			t.Logf("Expected error on disk full: %v", err)
		}

		// Remove fill file and verify recovery
		os.Remove(fillFile)
		time.Sleep(2 * time.Second)

		resp, err := http.Get(cfg.ServerURL + "/health")
		if err != nil {
			t.Fatalf("Server not responsive after disk full recovery: %v", err)
		}
		resp.Body.Close()
	*/
}
