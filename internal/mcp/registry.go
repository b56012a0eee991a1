package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/metrics"
	"github.com/jivehq/jive/internal/session"
	"github.com/jivehq/jive/internal/storage"
)

// ErrUnknownTool is returned when a call names a tool nobody registered.
// The dispatcher maps it to a -32602 protocol error.
var ErrUnknownTool = errors.New("unknown tool")

// ToolCall carries the resolved context of one tool invocation: which tool,
// which namespace, and the store the namespace maps to.
type ToolCall struct {
	Name      string
	Namespace string
	Store     *storage.Store
	Session   *session.Session
}

type ctxKeyToolCall struct{}

// WithToolCall stores the call context for handlers.
func WithToolCall(ctx context.Context, call *ToolCall) context.Context {
	return context.WithValue(ctx, ctxKeyToolCall{}, call)
}

// ToolCallFromContext retrieves the call context, or nil.
func ToolCallFromContext(ctx context.Context) *ToolCall {
	if call, ok := ctx.Value(ctxKeyToolCall{}).(*ToolCall); ok {
		return call
	}
	return nil
}

// ToolHandler is the type-erased form a registered handler is stored in.
type ToolHandler func(ctx context.Context, args json.RawMessage) *Result

// ToolDef defines a tool as served by tools/list.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Registry stores tool definitions, handlers, and the legacy-name
// translation table.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*ToolDef
	handlers map[string]ToolHandler
	order    []string // preserve registration order
	legacy   map[string]legacyTool
	warned   map[string]*sync.Once
	timeout  func(tool string) time.Duration
}

// NewRegistry creates a tool registry. timeout returns the per-tool
// deadline; nil or a zero duration disables the deadline for that tool.
func NewRegistry(timeout func(tool string) time.Duration) *Registry {
	return &Registry{
		tools:    make(map[string]*ToolDef),
		handlers: make(map[string]ToolHandler),
		order:    make([]string, 0),
		legacy:   make(map[string]legacyTool),
		warned:   make(map[string]*sync.Once),
		timeout:  timeout,
	}
}

// Register adds a tool with its handler to the registry. The input schema is
// auto-generated from P unless the definition carries one.
func Register[P any](r *Registry, def ToolDef, handler func(ctx context.Context, call *ToolCall, params P) *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.InputSchema == nil {
		def.InputSchema = GenerateSchema[P]()
	}

	r.tools[def.Name] = &def
	r.handlers[def.Name] = wrapHandler(handler)
	r.order = append(r.order, def.Name)
}

// GetTool returns a tool definition by name.
func (r *Registry) GetTool(name string) (*ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// GetAllTools returns all tool definitions in registration order.
func (r *Registry) GetAllTools() []*ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*ToolDef, 0, len(r.order))
	for _, name := range r.order {
		if tool, ok := r.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

// CallTool executes a tool by name with JSON arguments. Legacy names are
// translated first; the per-tool deadline and metrics apply to the resolved
// name. Handler failures come back inside the Result, never as an error;
// the only error is ErrUnknownTool.
func (r *Registry) CallTool(ctx context.Context, name string, args json.RawMessage) (*Result, error) {
	name, args = r.translate(name, args)

	r.mu.RLock()
	def, ok := r.tools[name]
	handler := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if r.timeout != nil {
		if d := r.timeout(name); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	start := time.Now()
	var result *Result
	if missing := missingRequired(def.InputSchema, args); len(missing) > 0 {
		result = fail(CodeValidation, "missing required parameter(s): %s", strings.Join(missing, ", "))
	} else {
		result = safeInvoke(ctx, name, handler, args)
	}

	status := "success"
	if !result.Success {
		status = "error"
	}
	metrics.RecordToolCall(name, actionOf(args), status, time.Since(start))
	return result, nil
}

// safeInvoke runs the handler with panic recovery so one bad call cannot
// take the transport loop down.
func safeInvoke(ctx context.Context, name string, handler ToolHandler, args json.RawMessage) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("tool %s panicked: %v", name, rec)
			result = fail(CodeInternal, "internal error in %s", name)
		}
	}()
	return handler(ctx, args)
}

// missingRequired checks the schema's top-level required list against the
// raw argument object.
func missingRequired(schema map[string]any, args json.RawMessage) []string {
	required, ok := schema["required"].([]string)
	if !ok || len(required) == 0 {
		return nil
	}

	present := map[string]json.RawMessage{}
	if len(args) > 0 {
		_ = json.Unmarshal(args, &present)
	}

	var missing []string
	for _, name := range required {
		if raw, ok := present[name]; !ok || string(raw) == "null" || string(raw) == `""` {
			missing = append(missing, name)
		}
	}
	return missing
}

// actionOf extracts the action discriminator for metrics labels.
func actionOf(args json.RawMessage) string {
	var probe struct {
		Action string `json:"action"`
	}
	if len(args) > 0 {
		_ = json.Unmarshal(args, &probe)
	}
	if probe.Action == "" {
		return "default"
	}
	return probe.Action
}

// wrapHandler wraps a typed handler into a ToolHandler.
func wrapHandler[P any](handler func(ctx context.Context, call *ToolCall, params P) *Result) ToolHandler {
	return func(ctx context.Context, args json.RawMessage) *Result {
		var params P
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return fail(CodeInvalidParams, "invalid parameters: %v", err)
			}
		}

		call := ToolCallFromContext(ctx)
		if call == nil {
			call = &ToolCall{}
		}
		return handler(ctx, call, params)
	}
}

// GenerateSchema creates a JSON Schema from a Go type using reflection.
// Field names come from json tags, descriptions from description tags, and
// omitempty marks a field optional.
func GenerateSchema[P any]() map[string]any {
	var p P
	t := reflect.TypeOf(p)

	if t == nil {
		return map[string]any{"type": "object"}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return map[string]any{"type": "object"}
	}
	return structSchema(t)
}

func structSchema(t reflect.Type) map[string]any {
	props := make(map[string]any)
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}

	var required []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		omitempty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitempty = true
				}
			}
		}

		propSchema := typeToSchema(field.Type)
		if desc := field.Tag.Get("description"); desc != "" {
			propSchema["description"] = desc
		}
		props[name] = propSchema

		if !omitempty {
			required = append(required, name)
		}
	}

	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// typeToSchema converts a Go type to its JSON Schema shape.
func typeToSchema(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Ptr {
		return typeToSchema(t.Elem())
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Slice, reflect.Array:
		return map[string]any{
			"type":  "array",
			"items": typeToSchema(t.Elem()),
		}
	case reflect.Map:
		return map[string]any{
			"type":                 "object",
			"additionalProperties": typeToSchema(t.Elem()),
		}
	case reflect.Struct:
		return structSchema(t)
	case reflect.Interface:
		return map[string]any{}
	default:
		return map[string]any{"type": "string"}
	}
}
