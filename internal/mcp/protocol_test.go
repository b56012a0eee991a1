package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jivehq/jive/internal/session"
)

func processReq(t *testing.T, s *Server, scope *callScope, body string) *JSONRPCResponse {
	t.Helper()
	var req JSONRPCRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("bad request body %q: %v", body, err)
	}
	return s.process(context.Background(), &req, scope)
}

func initializedScope(t *testing.T, s *Server, ns string) *callScope {
	t.Helper()
	scope := &callScope{transport: session.TransportStdio}
	resp := processReq(t, s, scope, initializeBody(ns))
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}
	return scope
}

func TestProcessInitialize(t *testing.T) {
	s := newTestServer(t)
	scope := &callScope{transport: session.TransportStdio}

	resp := processReq(t, s, scope, initializeBody(""))
	if resp.Error != nil {
		t.Fatalf("initialize error: %+v", resp.Error)
	}

	result, ok := resp.Result.(initializeResult)
	if !ok {
		t.Fatalf("result = %T, want initializeResult", resp.Result)
	}
	if result.ProtocolVersion != ProtocolVersion {
		t.Errorf("protocolVersion = %s, want %s", result.ProtocolVersion, ProtocolVersion)
	}
	if result.ServerInfo.Name != serverName || result.ServerInfo.Version != serverVersion {
		t.Errorf("serverInfo = %+v", result.ServerInfo)
	}
	if scope.sess == nil {
		t.Fatal("expected a session on the scope")
	}
	if result.SessionID != scope.sess.ID {
		t.Errorf("sessionId = %s, session = %s; want equal", result.SessionID, scope.sess.ID)
	}
	if scope.sess.Transport != session.TransportStdio {
		t.Errorf("transport = %s, want stdio", scope.sess.Transport)
	}
	if _, ok := result.Capabilities["tools"]; !ok {
		t.Error("capabilities missing tools")
	}
}

func TestProcessRejectsMalformedRequests(t *testing.T) {
	s := newTestServer(t)
	scope := &callScope{transport: session.TransportStdio}

	resp := processReq(t, s, scope, `{"jsonrpc":"1.0","id":1,"method":"ping"}`)
	if resp == nil || resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("wrong version: resp = %+v, want code %d", resp, codeInvalidRequest)
	}

	resp = processReq(t, s, scope, `{"jsonrpc":"2.0","id":2}`)
	if resp == nil || resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("missing method: resp = %+v, want code %d", resp, codeInvalidRequest)
	}

	// Malformed notifications are dropped without a reply.
	if resp := processReq(t, s, scope, `{"jsonrpc":"1.0","method":"ping"}`); resp != nil {
		t.Errorf("notification got a reply: %+v", resp)
	}
}

func TestProcessMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	scope := &callScope{transport: session.TransportStdio}

	resp := processReq(t, s, scope, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeMethodNotFound)
	}

	if resp := processReq(t, s, scope, `{"jsonrpc":"2.0","method":"resources/changed"}`); resp != nil {
		t.Errorf("unknown notification got a reply: %+v", resp)
	}
}

func TestProcessPing(t *testing.T) {
	s := newTestServer(t)
	scope := &callScope{transport: session.TransportStdio}

	resp := processReq(t, s, scope, `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
	if resp.Error != nil {
		t.Fatalf("ping error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok || len(result) != 0 {
		t.Errorf("ping result = %#v, want empty object", resp.Result)
	}
}

func TestToolsListRequiresSession(t *testing.T) {
	s := newTestServer(t)
	scope := &callScope{transport: session.TransportStdio}

	resp := processReq(t, s, scope, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if resp.Error == nil || resp.Error.Code != codeInvalidSession {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeInvalidSession)
	}

	scope = initializedScope(t, s, "")
	resp = processReq(t, s, scope, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	if resp.Error != nil {
		t.Fatalf("tools/list error: %+v", resp.Error)
	}
	result, ok := resp.Result.(toolListResult)
	if !ok {
		t.Fatalf("result = %T, want toolListResult", resp.Result)
	}

	want := []string{
		"jive_manage_work_item", "jive_get_work_item", "jive_search_content",
		"jive_get_hierarchy", "jive_reorder_work_items", "jive_execute_work_item",
		"jive_track_progress", "jive_sync_data",
	}
	if len(result.Tools) != len(want) {
		t.Fatalf("tools = %d, want %d", len(result.Tools), len(want))
	}
	for i, name := range want {
		if result.Tools[i].Name != name {
			t.Errorf("tools[%d] = %s, want %s", i, result.Tools[i].Name, name)
		}
		if result.Tools[i].InputSchema == nil {
			t.Errorf("tools[%d] has no input schema", i)
		}
	}
}

func TestInitializeBindsNamespace(t *testing.T) {
	s := newTestServer(t)

	scope := initializedScope(t, s, "team-a")
	if scope.sess.BoundNamespace != "team-a" {
		t.Errorf("bound namespace = %q, want team-a", scope.sess.BoundNamespace)
	}

	bad := &callScope{transport: session.TransportStdio}
	resp := processReq(t, s, bad, initializeBody("Not Valid!"))
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("error = %+v, want code %d", resp.Error, codeInvalidParams)
	}
	if !strings.Contains(resp.Error.Message, "invalid namespace") {
		t.Errorf("message = %q, want it to name the namespace problem", resp.Error.Message)
	}
}

func TestInitializeURLNamespaceOverridesParams(t *testing.T) {
	s := newTestServer(t)

	scope := &callScope{transport: session.TransportHTTP, urlNamespace: "team-b"}
	if resp := processReq(t, s, scope, initializeBody("team-a")); resp.Error != nil {
		t.Fatalf("initialize error: %+v", resp.Error)
	}
	if scope.sess.BoundNamespace != "team-b" {
		t.Errorf("bound namespace = %q, want team-b (URL wins)", scope.sess.BoundNamespace)
	}

	// A "default" URL segment defers to the params namespace.
	scope = &callScope{transport: session.TransportHTTP, urlNamespace: "default"}
	if resp := processReq(t, s, scope, initializeBody("team-a")); resp.Error != nil {
		t.Fatalf("initialize error: %+v", resp.Error)
	}
	if scope.sess.BoundNamespace != "team-a" {
		t.Errorf("bound namespace = %q, want team-a", scope.sess.BoundNamespace)
	}
}

func TestToolsCallValidation(t *testing.T) {
	s := newTestServer(t)
	scope := initializedScope(t, s, "")

	resp := processReq(t, s, scope, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"arguments":{}}}`)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("missing name: error = %+v, want code %d", resp.Error, codeInvalidParams)
	}

	resp = processReq(t, s, scope, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"jive_unknown"}}`)
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("unknown tool: error = %+v, want code %d", resp.Error, codeInvalidParams)
	}
	if !strings.Contains(resp.Error.Message, "unknown tool") {
		t.Errorf("message = %q, want 'unknown tool'", resp.Error.Message)
	}
}

func TestToolsCallWrapsEnvelope(t *testing.T) {
	s := newTestServer(t)
	scope := initializedScope(t, s, "")

	resp := processReq(t, s, scope,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"jive_get_work_item","arguments":{"action":"list"}}}`)
	if resp.Error != nil {
		t.Fatalf("tools/call error: %+v", resp.Error)
	}
	wrapped, ok := resp.Result.(*CallToolResult)
	if !ok {
		t.Fatalf("result = %T, want *CallToolResult", resp.Result)
	}
	if wrapped.IsError {
		t.Error("expected isError=false for a successful call")
	}
	if len(wrapped.Content) != 1 || wrapped.Content[0].Type != "text" {
		t.Fatalf("content = %+v, want one text item", wrapped.Content)
	}
	var envelope Result
	if err := json.Unmarshal([]byte(wrapped.Content[0].Text), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !envelope.Success {
		t.Errorf("envelope = %+v, want success", envelope)
	}

	// A handler failure stays inside the envelope; isError mirrors it.
	resp = processReq(t, s, scope,
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"jive_manage_work_item","arguments":{"action":"explode"}}}`)
	if resp.Error != nil {
		t.Fatalf("tools/call error: %+v", resp.Error)
	}
	wrapped = resp.Result.(*CallToolResult)
	if !wrapped.IsError {
		t.Error("expected isError=true for a failed call")
	}
}

func TestResolveNamespacePrecedence(t *testing.T) {
	s := newTestServer(t)
	req := &JSONRPCRequest{JSONRPC: "2.0", ID: 1}

	bound := func(ns string) *callScope {
		sess := s.sessions.Create(session.ClientInfo{Name: "t"}, nil, ProtocolVersion, session.TransportHTTP, ns)
		t.Cleanup(func() { s.sessions.Delete(sess.ID) })
		return &callScope{transport: session.TransportHTTP, sess: sess}
	}
	args := func(ns string) callParams {
		if ns == "" {
			return callParams{}
		}
		return callParams{Arguments: json.RawMessage(`{"namespace":"` + ns + `"}`)}
	}

	tests := []struct {
		name   string
		scope  *callScope
		params callParams
		want   string
		denied bool
	}{
		{"everything empty falls to default", &callScope{}, args(""), "default", false},
		{"request argument wins unbound", &callScope{}, args("req-ns"), "req-ns", false},
		{"url beats request argument", &callScope{urlNamespace: "url-ns"}, args("req-ns"), "url-ns", false},
		{"default url segment is absent", &callScope{urlNamespace: "default"}, args("req-ns"), "req-ns", false},
		{"session binding applies", bound("sess-ns"), args(""), "sess-ns", false},
		{"matching explicit namespace allowed", bound("sess-ns"), args("sess-ns"), "sess-ns", false},
		{"differing request denied", bound("sess-ns"), args("other"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, resp := s.resolveNamespace(req, tt.scope, tt.params)
			if tt.denied {
				if resp == nil || resp.Error == nil || resp.Error.Code != codeInvalidParams {
					t.Fatalf("resp = %+v, want code %d", resp, codeInvalidParams)
				}
				if !tt.scope.denied {
					t.Error("expected the scope marked denied")
				}
				return
			}
			if resp != nil {
				t.Fatalf("unexpected error: %+v", resp.Error)
			}
			if ns != tt.want {
				t.Errorf("namespace = %q, want %q", ns, tt.want)
			}
		})
	}
}

func TestResolveNamespaceFromMeta(t *testing.T) {
	s := newTestServer(t)
	req := &JSONRPCRequest{JSONRPC: "2.0", ID: 1}

	params := callParams{
		Arguments: json.RawMessage(`{"action":"list"}`),
		Meta:      json.RawMessage(`{"namespace":"meta-ns"}`),
	}
	ns, resp := s.resolveNamespace(req, &callScope{}, params)
	if resp != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if ns != "meta-ns" {
		t.Errorf("namespace = %q, want meta-ns", ns)
	}
}
