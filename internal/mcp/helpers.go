package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jivehq/jive/internal/audit"
)

// Result is the structured envelope every tool handler returns. The
// dispatcher serialises it into a single text content item; REST surfaces
// return it as-is.
type Result struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// WithMeta attaches one metadata entry, allocating the map on first use.
func (r *Result) WithMeta(key string, value any) *Result {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any, 1)
	}
	r.Metadata[key] = value
	return r
}

func ok(data any) *Result {
	return &Result{Success: true, Data: data}
}

func okMsg(data any, format string, args ...any) *Result {
	return &Result{Success: true, Data: data, Message: fmt.Sprintf(format, args...)}
}

func fail(code, format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...), ErrorCode: code}
}

// failErr wraps an error, deriving the stable code from its sentinel chain.
func failErr(err error) *Result {
	code := codeFor(err)
	return &Result{Success: false, Error: clientMessage(err, code), ErrorCode: code}
}

// TextContent is one MCP content item. Type is always "text".
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the MCP wire form of a tool invocation result.
type CallToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// wrapResult serialises the envelope into the MCP content shape. isError
// mirrors the envelope's success flag.
func wrapResult(res *Result) *CallToolResult {
	data, err := json.Marshal(res)
	if err != nil {
		data, _ = json.Marshal(fail(CodeInternal, "failed to serialise result: %v", err))
	}
	return &CallToolResult{
		Content: []TextContent{{Type: "text", Text: string(data)}},
		IsError: !res.Success,
	}
}

// auditCall records one audit event stamped with the call's namespace,
// session, and request id.
func auditCall(ctx context.Context, call *ToolCall, e *audit.Event) {
	if call != nil {
		e.Namespace = call.Namespace
		if call.Session != nil {
			e.SessionID = call.Session.ID
		}
	}
	e.RequestID = RequestIDFrom(ctx)
	audit.Log(e)
}
