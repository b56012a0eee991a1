package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jivehq/jive/internal/config"
	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/execution"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/namespace"
	"github.com/jivehq/jive/internal/search"
	"github.com/jivehq/jive/internal/syncdata"
	"github.com/jivehq/jive/internal/workitem"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerRPS(t, 1000, 1000)
}

// newTestServerRPS wires a full server over a throwaway data directory. The
// local hash embedder keeps everything offline and deterministic.
func newTestServerRPS(t *testing.T, rps float64, burst int) *Server {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 3454, LogLevel: "ERROR", LogDir: filepath.Join(dir, "logs")},
		Database:  config.DatabaseConfig{DataPath: filepath.Join(dir, "data"), EmbeddingModel: "local-hash-v1"},
		Namespace: config.NamespaceConfig{Default: namespace.DefaultName, AutoCreate: true},
		Security:  config.SecurityConfig{CORSOrigins: []string{"*"}, RateLimitRPS: rps, RateLimitBurst: burst},
		Backup:    config.BackupConfig{Dir: filepath.Join(dir, "backups"), Retention: 3},
		Sync:      config.SyncConfig{Dir: filepath.Join(dir, "sync"), Format: "json"},
	}

	namespaces, err := namespace.NewManager(cfg.Database.DataPath, cfg.Namespace.Default, cfg.Namespace.AutoCreate)
	if err != nil {
		t.Fatalf("namespace manager: %v", err)
	}

	embedder := embedding.NewLazy(cfg.Database.EmbeddingModel, model.EmbeddingDim, func() (embedding.Embedder, error) {
		return embedding.NewLocal(model.EmbeddingDim), nil
	})
	if err := embedder.Prewarm(context.Background()); err != nil {
		t.Fatalf("prewarm embedder: %v", err)
	}

	engine := workitem.NewEngine(embedder)
	backups, err := syncdata.NewBackups(namespaces, cfg.Backup.Dir, cfg.Backup.Retention)
	if err != nil {
		t.Fatalf("backups: %v", err)
	}

	s := NewServer(cfg, namespaces, embedder, engine,
		search.NewEngine(embedder),
		execution.NewManager(engine, nil, 2, 16),
		syncdata.NewSyncer(cfg.Sync.Dir, syncdata.FormatJSON, embedder),
		backups)
	t.Cleanup(s.Close)
	return s
}

func newTestHTTP(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := newTestServer(t)
	srv := httptest.NewServer(s.buildHandler())
	t.Cleanup(srv.Close)
	return s, srv
}

func initializeBody(ns string) string {
	params := `{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"0"}`
	if ns != "" {
		params += fmt.Sprintf(`,"namespace":%q`, ns)
	}
	params += "}"
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":%s}`, params)
}

// postRPC sends one JSON-RPC body and decodes the reply. A nil response
// payload means the server answered with an empty body (notifications).
func postRPC(t *testing.T, srv *httptest.Server, path, sessionID, body string) (*http.Response, *JSONRPCResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp, nil
	}
	var rpc JSONRPCResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		t.Fatalf("decode response %q: %v", raw, err)
	}
	return resp, &rpc
}

// envelopeOf unwraps the tool result envelope from an MCP tools/call reply.
func envelopeOf(t *testing.T, rpc *JSONRPCResponse) map[string]any {
	t.Helper()
	if rpc == nil {
		t.Fatal("expected a response body")
	}
	if rpc.Error != nil {
		t.Fatalf("rpc error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}
	wrapper, ok := rpc.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want object", rpc.Result)
	}
	items, _ := wrapper["content"].([]any)
	if len(items) != 1 {
		t.Fatalf("content items = %d, want 1", len(items))
	}
	entry, _ := items[0].(map[string]any)
	if entry["type"] != "text" {
		t.Fatalf("content type = %v, want text", entry["type"])
	}
	var envelope map[string]any
	if err := json.Unmarshal([]byte(entry["text"].(string)), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return envelope
}

func callBody(id int, tool string, args string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":%q,"arguments":%s}}`, id, tool, args)
}

func TestInitializeCreatesSession(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, rpc := postRPC(t, srv, "/mcp", "", initializeBody(""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	sid := resp.Header.Get(sessionHeader)
	if sid == "" {
		t.Fatal("expected a session id header")
	}

	result, ok := rpc.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want object", rpc.Result)
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion = %v, want %s", result["protocolVersion"], ProtocolVersion)
	}
	info, _ := result["serverInfo"].(map[string]any)
	if info["name"] != serverName {
		t.Errorf("server name = %v, want %s", info["name"], serverName)
	}
	if result["sessionId"] != sid {
		t.Errorf("sessionId = %v, header = %q; want equal", result["sessionId"], sid)
	}
}

func TestSessionHeaderEchoedOnFollowup(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, _ := postRPC(t, srv, "/mcp", "", initializeBody(""))
	sid := resp.Header.Get(sessionHeader)

	resp2, rpc := postRPC(t, srv, "/mcp", sid, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if got := resp2.Header.Get(sessionHeader); got != sid {
		t.Errorf("echoed session = %q, want %q", got, sid)
	}
	result, _ := rpc.Result.(map[string]any)
	tools, _ := result["tools"].([]any)
	if len(tools) != 8 {
		t.Errorf("tools = %d, want 8", len(tools))
	}
}

func TestSessionlessToolCall(t *testing.T) {
	_, srv := newTestHTTP(t)

	body := callBody(3, "jive_manage_work_item", `{"action":"create","type":"initiative","title":"Road to beta"}`)
	resp, rpc := postRPC(t, srv, "/mcp", "", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	envelope := envelopeOf(t, rpc)
	if envelope["success"] != true {
		t.Fatalf("success = %v, want true (error: %v)", envelope["success"], envelope["error"])
	}
	item, _ := envelope["data"].(map[string]any)
	if item["item_type"] != "initiative" || item["title"] != "Road to beta" {
		t.Errorf("created item = %v/%v, want initiative/Road to beta", item["item_type"], item["title"])
	}
}

func TestUnknownSessionRejected(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, rpc := postRPC(t, srv, "/mcp", "no-such-session", `{"jsonrpc":"2.0","id":4,"method":"tools/list"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if rpc.Error == nil || rpc.Error.Code != codeInvalidSession {
		t.Fatalf("error = %+v, want code %d", rpc.Error, codeInvalidSession)
	}
}

func TestNotificationReturnsNoContent(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, rpc := postRPC(t, srv, "/mcp", "", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if rpc != nil {
		t.Fatalf("expected empty body, got %+v", rpc)
	}
}

func TestParseErrorReturnsBadRequest(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, rpc := postRPC(t, srv, "/mcp", "", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if rpc.Error == nil || rpc.Error.Code != codeParseError {
		t.Fatalf("error = %+v, want code %d", rpc.Error, codeParseError)
	}
}

func TestBoundSessionDeniesForeignNamespace(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, _ := postRPC(t, srv, "/mcp", "", initializeBody("team-a"))
	sid := resp.Header.Get(sessionHeader)

	body := callBody(5, "jive_get_work_item", `{"action":"list","namespace":"team-b"}`)
	resp2, rpc := postRPC(t, srv, "/mcp", sid, body)
	if resp2.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp2.StatusCode)
	}
	if rpc.Error == nil || rpc.Error.Code != codeInvalidParams {
		t.Fatalf("error = %+v, want code %d", rpc.Error, codeInvalidParams)
	}
	if !strings.Contains(rpc.Error.Message, "bound") {
		t.Errorf("error message %q should name the bound namespace", rpc.Error.Message)
	}

	// The same explicit namespace as the binding is fine.
	resp3, rpc3 := postRPC(t, srv, "/mcp", sid, callBody(6, "jive_get_work_item", `{"action":"list","namespace":"team-a"}`))
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp3.StatusCode)
	}
	envelope := envelopeOf(t, rpc3)
	if envelope["success"] != true {
		t.Errorf("success = %v, want true", envelope["success"])
	}
}

func TestURLNamespaceIsolation(t *testing.T) {
	_, srv := newTestHTTP(t)

	_, rpc := postRPC(t, srv, "/mcp/team-a", "",
		callBody(7, "jive_manage_work_item", `{"action":"create","type":"initiative","title":"Alpha only"}`))
	envelope := envelopeOf(t, rpc)
	if envelope["success"] != true {
		t.Fatalf("create failed: %v", envelope["error"])
	}

	listBody := callBody(8, "jive_get_work_item", `{"action":"list"}`)

	_, rpcA := postRPC(t, srv, "/mcp/team-a", "", listBody)
	dataA, _ := envelopeOf(t, rpcA)["data"].(map[string]any)
	if total, _ := dataA["total"].(float64); total != 1 {
		t.Errorf("team-a total = %v, want 1", dataA["total"])
	}

	_, rpcDefault := postRPC(t, srv, "/mcp", "", listBody)
	dataDefault, _ := envelopeOf(t, rpcDefault)["data"].(map[string]any)
	if total, _ := dataDefault["total"].(float64); total != 0 {
		t.Errorf("default total = %v, want 0", dataDefault["total"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", payload["status"])
	}
	if payload["version"] != serverVersion {
		t.Errorf("version = %v, want %s", payload["version"], serverVersion)
	}
	if payload["embedding_ready"] != true {
		t.Errorf("embedding_ready = %v, want true", payload["embedding_ready"])
	}
}

func TestToolsIndexListsUnifiedTools(t *testing.T) {
	_, srv := newTestHTTP(t)

	resp, err := srv.Client().Get(srv.URL + "/tools")
	if err != nil {
		t.Fatalf("GET /tools: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode tools: %v", err)
	}

	want := []string{
		"jive_manage_work_item", "jive_get_work_item", "jive_search_content",
		"jive_get_hierarchy", "jive_reorder_work_items", "jive_execute_work_item",
		"jive_track_progress", "jive_sync_data",
	}
	if len(payload.Tools) != len(want) {
		t.Fatalf("tools = %d, want %d", len(payload.Tools), len(want))
	}
	for i, name := range want {
		if payload.Tools[i].Name != name {
			t.Errorf("tools[%d] = %s, want %s", i, payload.Tools[i].Name, name)
		}
	}
}

func TestManageDescriptionAdvertisesRealFields(t *testing.T) {
	s := newTestServer(t)

	def, ok := s.registry.GetTool("jive_manage_work_item")
	if !ok {
		t.Fatal("jive_manage_work_item not registered")
	}
	props, ok := def.InputSchema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema properties missing: %v", def.InputSchema)
	}

	// Every field the create line advertises must exist in the schema.
	_, after, found := strings.Cut(def.Description, "Optional: ")
	if !found {
		t.Fatalf("create line lost its Optional list:\n%s", def.Description)
	}
	list, _, _ := strings.Cut(after, ".")
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if _, ok := props[field]; !ok {
			t.Errorf("description advertises %q but the schema has no such property", field)
		}
	}
}

func TestToolsExecuteREST(t *testing.T) {
	_, srv := newTestHTTP(t)

	post := func(body string) (*http.Response, map[string]any) {
		t.Helper()
		resp, err := srv.Client().Post(srv.URL+"/tools/execute", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /tools/execute: %v", err)
		}
		defer resp.Body.Close()
		var payload map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp, payload
	}

	resp, payload := post(`{"tool":"jive_manage_work_item","arguments":{"action":"create","type":"task","title":"REST task"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error: %v)", resp.StatusCode, payload["error"])
	}
	if payload["success"] != true {
		t.Errorf("success = %v, want true", payload["success"])
	}

	resp, _ = post(`{"arguments":{}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing tool: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = post(`{"tool":"jive_no_such_tool","arguments":{}}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown tool: status = %d, want 404", resp.StatusCode)
	}

	resp, payload = post(`{"tool":"jive_manage_work_item","arguments":{"action":"explode"}}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("failed call: status = %d, want 422", resp.StatusCode)
	}
	if payload["error_code"] != CodeInvalidAction {
		t.Errorf("error_code = %v, want %s", payload["error_code"], CodeInvalidAction)
	}
}

func TestNamespaceRESTLifecycle(t *testing.T) {
	_, srv := newTestHTTP(t)

	create := func(name string) *http.Response {
		t.Helper()
		resp, err := srv.Client().Post(srv.URL+"/namespaces", "application/json",
			strings.NewReader(fmt.Sprintf(`{"name":%q}`, name)))
		if err != nil {
			t.Fatalf("POST /namespaces: %v", err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := create("team-x"); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	if resp := create("team-x"); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}
	if resp := create("Bad Name!"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid name status = %d, want 400", resp.StatusCode)
	}

	resp, err := srv.Client().Get(srv.URL + "/namespaces")
	if err != nil {
		t.Fatalf("GET /namespaces: %v", err)
	}
	var listing struct {
		Namespaces []struct {
			Namespace string `json:"namespace"`
		} `json:"namespaces"`
		Total int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	resp.Body.Close()
	found := false
	for _, ns := range listing.Namespaces {
		if ns.Namespace == "team-x" {
			found = true
		}
	}
	if !found {
		t.Errorf("listing %v does not include team-x", listing.Namespaces)
	}

	del := func(name string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/namespaces/"+name, nil)
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("DELETE /namespaces/%s: %v", name, err)
		}
		resp.Body.Close()
		return resp
	}

	if resp := del("team-x"); resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d, want 200", resp.StatusCode)
	}
	if resp := del("team-x"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", resp.StatusCode)
	}
	if resp := del(namespace.DefaultName); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("delete default status = %d, want 400", resp.StatusCode)
	}
}

func TestNamespaceStatsEndpoint(t *testing.T) {
	s, srv := newTestHTTP(t)

	callTool(t, s, "jive_manage_work_item", map[string]any{
		"action": "create", "type": "initiative", "title": "Stats seed",
	})

	resp, err := srv.Client().Get(srv.URL + "/namespaces/default")
	if err != nil {
		t.Fatalf("GET /namespaces/default: %v", err)
	}
	var stats struct {
		Namespace string         `json:"namespace"`
		Tables    map[string]int `json:"tables"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", resp.StatusCode)
	}
	if stats.Tables["work_items"] != 1 {
		t.Errorf("work_items count = %d, want 1", stats.Tables["work_items"])
	}

	resp, err = srv.Client().Get(srv.URL + "/namespaces/no-such-ns")
	if err != nil {
		t.Fatalf("GET missing namespace: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing namespace status = %d, want 404", resp.StatusCode)
	}
}

func TestSSEStreamOpensWithInitialized(t *testing.T) {
	_, srv := newTestHTTP(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/mcp", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /mcp: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		if event.Method != "notifications/initialized" {
			t.Errorf("first event method = %q, want notifications/initialized", event.Method)
		}
		return
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestRateLimitReturnsTooManyRequests(t *testing.T) {
	s := newTestServerRPS(t, 1, 2)
	srv := httptest.NewServer(s.buildHandler())
	t.Cleanup(srv.Close)

	var limited *http.Response
	for i := 0; i < 10; i++ {
		resp, rpc := postRPC(t, srv, "/mcp", "", fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping"}`, i))
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = resp
			if rpc.Error == nil || rpc.Error.Code != -32029 {
				t.Fatalf("error = %+v, want code -32029", rpc.Error)
			}
			break
		}
	}
	if limited == nil {
		t.Fatal("burst of 10 requests never hit the limiter")
	}
	if limited.Header.Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}

	// Health probes bypass the limiter.
	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}
