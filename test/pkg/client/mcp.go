package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// protocolVersion is the MCP revision the test client requests.
const protocolVersion = "2024-11-05"

// sessionHeader carries the MCP session id on HTTP.
const sessionHeader = "Mcp-Session-Id"

// MCPClient is a JSON-RPC 2.0 client for Jive's HTTP transport. It performs
// the initialize handshake, carries the session header on every request, and
// exposes tools/list and tools/call.
type MCPClient struct {
	serverURL  string
	namespace  string
	httpClient *http.Client
	sessionID  string
	nextID     atomic.Int64
	ctx        context.Context
}

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// Content is one item of a tool result's content array.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult represents the result of a tool invocation
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Envelope is the structured payload every Jive tool returns as the text of
// its first content item.
type Envelope struct {
	Success   bool                   `json:"success"`
	Data      json.RawMessage        `json:"data,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// NewMCPClient creates a new MCP client for the given server URL
func NewMCPClient(serverURL string) *MCPClient {
	return &MCPClient{
		serverURL: serverURL,
		httpClient: &http.Client{
			Timeout: 0, // tool calls may legitimately run long
		},
		ctx: context.Background(),
	}
}

// SetNamespace binds the session to a namespace at initialize time. Must be
// called before Connect.
func (c *MCPClient) SetNamespace(ns string) {
	c.namespace = ns
}

// SessionID returns the id assigned by the server during Connect.
func (c *MCPClient) SessionID() string {
	return c.sessionID
}

// ServerURL returns the endpoint this client posts to. Tests use it to open
// additional sessions against the same server.
func (c *MCPClient) ServerURL() string {
	return c.serverURL
}

// Connect performs the initialize handshake and records the session id.
func (c *MCPClient) Connect() error {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "jive-test",
			"version": "0.1.0",
		},
	}
	if c.namespace != "" {
		params["namespace"] = c.namespace
	}

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		SessionID       string `json:"sessionId"`
	}
	header, err := c.call("initialize", params, &result)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.sessionID = header.Get(sessionHeader)
	if c.sessionID == "" {
		c.sessionID = result.SessionID
	}
	if c.sessionID == "" {
		return fmt.Errorf("server did not assign a session id")
	}

	// The handshake ends with the initialized notification; the server
	// answers notifications with 204.
	if err := c.notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("initialized notification failed: %w", err)
	}
	return nil
}

// ListTools retrieves all available tools from the server
func (c *MCPClient) ListTools() ([]Tool, error) {
	if c.sessionID == "" {
		return nil, fmt.Errorf("not connected - call Connect() first")
	}

	var result struct {
		Tools []Tool `json:"tools"`
	}
	if _, err := c.call("tools/list", map[string]interface{}{}, &result); err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

// InvokeTool calls the specified tool with the given parameters
func (c *MCPClient) InvokeTool(name string, params map[string]interface{}) (*ToolResult, error) {
	if c.sessionID == "" {
		return nil, fmt.Errorf("not connected - call Connect() first")
	}

	var result ToolResult
	_, err := c.call("tools/call", map[string]interface{}{
		"name":      name,
		"arguments": params,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}
	return &result, nil
}

// Ping checks the server is answering JSON-RPC on this session.
func (c *MCPClient) Ping() error {
	_, err := c.call("ping", map[string]interface{}{}, nil)
	return err
}

// Close clears the session; the server expires it on its own.
func (c *MCPClient) Close() error {
	c.sessionID = ""
	return nil
}

// call posts one JSON-RPC request and unmarshals the result into out. The
// response headers come back so Connect can read the session id.
func (c *MCPClient) call(method string, params interface{}, out interface{}) (http.Header, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	header, body, err := c.post(req)
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid response for %s: %w", method, err)
	}
	if resp.Error != nil {
		return header, resp.Error
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return header, fmt.Errorf("invalid result for %s: %w", method, err)
		}
	}
	return header, nil
}

// notify posts a JSON-RPC notification (no id, no response body expected).
func (c *MCPClient) notify(method string, params interface{}) error {
	_, _, err := c.post(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
	return err
}

func (c *MCPClient) post(req rpcRequest) (http.Header, []byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.serverURL, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		httpReq.Header.Set(sessionHeader, c.sessionID)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.Header, nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode == http.StatusNoContent {
		return httpResp.Header, nil, nil
	}
	return httpResp.Header, body, nil
}

// GetToolContent extracts text content from a ToolResult
func (r *ToolResult) GetToolContent() string {
	if r == nil {
		return ""
	}

	var result string
	for _, content := range r.Content {
		if content.Type != "text" {
			continue
		}
		if result != "" {
			result += "\n"
		}
		result += content.Text
	}
	return result
}

// Envelope parses the structured tool payload out of the text content.
func (r *ToolResult) Envelope() (*Envelope, error) {
	text := r.GetToolContent()
	if text == "" {
		return nil, fmt.Errorf("tool result has no text content")
	}
	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("tool result is not a structured payload: %w", err)
	}
	return &env, nil
}

// DataAs unmarshals the envelope's data field into out.
func (e *Envelope) DataAs(out interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope has no data")
	}
	return json.Unmarshal(e.Data, out)
}
