package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/namespace"
	"github.com/jivehq/jive/internal/session"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

const (
	serverName    = "jive"
	serverVersion = "0.1.0"
)

// JSON-RPC 2.0 error codes, plus the MCP session code.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeInvalidSession = -32002
)

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *JSONRPCRequest) IsNotification() bool {
	return r.ID == nil
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func rpcResult(id, result any) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcError(id any, code int, format string, args ...any) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// parseError is the response to a body that never yielded a request id.
func parseError(err error) *JSONRPCResponse {
	return rpcError(nil, codeParseError, "parse error: %v", err)
}

// callScope carries per-connection state into request processing. HTTP
// creates one per request; stdio and WebSocket keep one per connection.
type callScope struct {
	transport    session.Transport
	urlNamespace string
	sess         *session.Session

	// sessionless marks transports that may serve requests without an
	// initialize handshake (HTTP only).
	sessionless bool

	// denied records that namespace resolution rejected the request, so the
	// HTTP layer can answer 403 alongside the JSON-RPC error.
	denied bool
}

// sessionNamespace returns the namespace the session was bound to, if any.
func (sc *callScope) sessionNamespace() string {
	if sc.sess == nil {
		return ""
	}
	return sc.sess.BoundNamespace
}

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ClientInfo      session.ClientInfo `json:"clientInfo"`
	Namespace       string             `json:"namespace"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
	SessionID       string         `json:"sessionId,omitempty"`
}

type toolListResult struct {
	Tools []*ToolDef `json:"tools"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Meta      json.RawMessage `json:"_meta"`
}

// nsProbe pulls the optional namespace field out of tool arguments or _meta
// without binding the rest of the payload.
type nsProbe struct {
	Namespace string `json:"namespace"`
}

// process dispatches one JSON-RPC request. A nil return means the request
// was a notification and gets no reply.
func (s *Server) process(ctx context.Context, req *JSONRPCRequest, scope *callScope) *JSONRPCResponse {
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return rpcError(req.ID, codeInvalidRequest, "invalid request: jsonrpc must be \"2.0\" and method is required")
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req, scope)
	case "notifications/initialized":
		logger.Debug("client initialized (transport=%s)", scope.transport)
		return nil
	case "tools/list":
		return s.handleToolsList(req, scope)
	case "tools/call":
		return s.handleToolsCall(ctx, req, scope)
	case "ping":
		return rpcResult(req.ID, map[string]any{})
	default:
		if req.IsNotification() {
			return nil
		}
		return rpcError(req.ID, codeMethodNotFound, "method not found: %s", req.Method)
	}
}

func (s *Server) handleInitialize(req *JSONRPCRequest, scope *callScope) *JSONRPCResponse {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req.ID, codeInvalidParams, "invalid initialize params: %v", err)
		}
	}

	// Clients ahead of or behind this revision still get served; the reply
	// names the version the server actually speaks.
	if params.ProtocolVersion != "" && params.ProtocolVersion != ProtocolVersion {
		logger.Warn("client requested protocol %s, serving %s", params.ProtocolVersion, ProtocolVersion)
	}

	bound := params.Namespace
	if scope.urlNamespace != "" && scope.urlNamespace != namespace.DefaultName {
		bound = scope.urlNamespace
	}
	if bound != "" {
		if err := namespace.Validate(bound); err != nil {
			return rpcError(req.ID, codeInvalidParams, "invalid namespace: %v", err)
		}
	}

	sess := s.sessions.Create(params.ClientInfo, params.Capabilities, ProtocolVersion, scope.transport, bound)
	scope.sess = sess
	logger.Info("🤝 session %s opened (client=%s/%s transport=%s namespace=%q)",
		sess.ID, params.ClientInfo.Name, params.ClientInfo.Version, scope.transport, bound)

	// Kick the embedder init off the request path so the first semantic
	// search does not pay for model construction.
	s.prewarmOnce.Do(func() {
		go func() {
			if err := s.embedder.Prewarm(context.Background()); err != nil {
				logger.Warn("embedding prewarm failed: %v", err)
			}
		}()
	})

	return rpcResult(req.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"prompts":   map[string]any{},
			"resources": map[string]any{},
			"logging":   map[string]any{},
		},
		ServerInfo: serverInfo{Name: serverName, Version: serverVersion},
		SessionID:  sess.ID,
	})
}

func (s *Server) handleToolsList(req *JSONRPCRequest, scope *callScope) *JSONRPCResponse {
	if resp := s.requireSession(req, scope); resp != nil {
		return resp
	}
	return rpcResult(req.ID, toolListResult{Tools: s.registry.GetAllTools()})
}

func (s *Server) handleToolsCall(ctx context.Context, req *JSONRPCRequest, scope *callScope) *JSONRPCResponse {
	if resp := s.requireSession(req, scope); resp != nil {
		return resp
	}

	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, codeInvalidParams, "invalid tools/call params: %v", err)
	}
	if params.Name == "" {
		return rpcError(req.ID, codeInvalidParams, "tool name is required")
	}

	ns, resp := s.resolveNamespace(req, scope, params)
	if resp != nil {
		return resp
	}

	store, err := s.namespaces.Store(ns)
	if err != nil {
		if errors.Is(err, namespace.ErrNotFound) || errors.Is(err, namespace.ErrInvalidName) || errors.Is(err, namespace.ErrReserved) {
			return rpcError(req.ID, codeInvalidParams, "%v", err)
		}
		return rpcError(req.ID, codeInternalError, "failed to open namespace %q: %v", ns, err)
	}

	// Requests within a session run in arrival order even when the
	// transport delivers them concurrently.
	if scope.sess != nil {
		scope.sess.Lock()
		defer scope.sess.Unlock()
	}

	call := &ToolCall{
		Name:      params.Name,
		Namespace: ns,
		Store:     store,
		Session:   scope.sess,
	}
	ctx = context.WithValue(ctx, logger.ContextKeyNamespace, ns)
	if scope.sess != nil {
		ctx = context.WithValue(ctx, logger.ContextKeySessionID, scope.sess.ID)
	}
	logger.DebugContext(ctx, "tool call", "tool", params.Name)

	result, err := s.registry.CallTool(WithToolCall(ctx, call), params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			return rpcError(req.ID, codeInvalidParams, "%v", err)
		}
		return rpcError(req.ID, codeInternalError, "%v", err)
	}
	return rpcResult(req.ID, wrapResult(result))
}

// requireSession rejects requests that arrive before initialize on
// transports without sessionless mode.
func (s *Server) requireSession(req *JSONRPCRequest, scope *callScope) *JSONRPCResponse {
	if scope.sess != nil || scope.sessionless {
		return nil
	}
	return rpcError(req.ID, codeInvalidSession, "no active session; call initialize first")
}

// resolveNamespace applies the precedence URL segment > session binding >
// request argument > configured default.
func (s *Server) resolveNamespace(req *JSONRPCRequest, scope *callScope, params callParams) (string, *JSONRPCResponse) {
	var probe nsProbe
	if len(params.Arguments) > 0 {
		// A malformed body fails later, against the tool's schema.
		_ = json.Unmarshal(params.Arguments, &probe)
	}
	if probe.Namespace == "" && len(params.Meta) > 0 {
		_ = json.Unmarshal(params.Meta, &probe)
	}

	ns, err := s.namespaces.Resolve(scope.urlNamespace, scope.sessionNamespace(), probe.Namespace)
	if err != nil {
		if errors.Is(err, namespace.ErrDenied) {
			scope.denied = true
		}
		return "", rpcError(req.ID, codeInvalidParams, "%v", err)
	}
	return ns, nil
}
