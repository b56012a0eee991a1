package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestGenerateSchema_String(t *testing.T) {
	type Params struct {
		Name string `json:"name"`
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	nameProp := props["name"].(map[string]any)
	if nameProp["type"] != "string" {
		t.Errorf("expected type string, got %v", nameProp["type"])
	}

	required := schema["required"].([]string)
	if len(required) != 1 || required[0] != "name" {
		t.Errorf("expected required=[name], got %v", required)
	}
}

func TestGenerateSchema_Numbers(t *testing.T) {
	type Params struct {
		Limit    int     `json:"limit"`
		Progress float64 `json:"progress"`
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	if got := props["limit"].(map[string]any)["type"]; got != "integer" {
		t.Errorf("expected type integer, got %v", got)
	}
	if got := props["progress"].(map[string]any)["type"]; got != "number" {
		t.Errorf("expected type number, got %v", got)
	}
}

func TestGenerateSchema_Boolean(t *testing.T) {
	type Params struct {
		Force bool `json:"force"`
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	forceProp := props["force"].(map[string]any)
	if forceProp["type"] != "boolean" {
		t.Errorf("expected type boolean, got %v", forceProp["type"])
	}
}

func TestGenerateSchema_Array(t *testing.T) {
	type Params struct {
		Tags []string `json:"tags"`
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	tagsProp := props["tags"].(map[string]any)
	if tagsProp["type"] != "array" {
		t.Errorf("expected type array, got %v", tagsProp["type"])
	}
	items := tagsProp["items"].(map[string]any)
	if items["type"] != "string" {
		t.Errorf("expected items type string, got %v", items["type"])
	}
}

func TestGenerateSchema_Map(t *testing.T) {
	type Params struct {
		Labels map[string]string `json:"labels"`
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	labelsProp := props["labels"].(map[string]any)
	if labelsProp["type"] != "object" {
		t.Errorf("expected type object, got %v", labelsProp["type"])
	}
	ap := labelsProp["additionalProperties"].(map[string]any)
	if ap["type"] != "string" {
		t.Errorf("expected additionalProperties type string, got %v", ap["type"])
	}
}

func TestGenerateSchema_PointerUnwraps(t *testing.T) {
	type Params struct {
		Title *string  `json:"title,omitempty"`
		Score *float64 `json:"score,omitempty"`
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	if got := props["title"].(map[string]any)["type"]; got != "string" {
		t.Errorf("expected type string, got %v", got)
	}
	if got := props["score"].(map[string]any)["type"]; got != "number" {
		t.Errorf("expected type number, got %v", got)
	}
	if _, ok := schema["required"]; ok {
		t.Errorf("expected no required fields, got %v", schema["required"])
	}
}

func TestGenerateSchema_NestedStruct(t *testing.T) {
	type Filters struct {
		Status []string `json:"status,omitempty"`
	}
	type Params struct {
		Filters Filters `json:"filters,omitempty"`
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	filtersProp := props["filters"].(map[string]any)
	if filtersProp["type"] != "object" {
		t.Errorf("expected type object, got %v", filtersProp["type"])
	}
	nested := filtersProp["properties"].(map[string]any)
	if _, ok := nested["status"]; !ok {
		t.Error("expected nested property 'status'")
	}
}

func TestGenerateSchema_Omitempty(t *testing.T) {
	type Params struct {
		Action    string `json:"action"`
		Namespace string `json:"namespace,omitempty"`
	}
	schema := GenerateSchema[Params]()

	required := schema["required"].([]string)
	if len(required) != 1 || required[0] != "action" {
		t.Errorf("expected required=[action], got %v", required)
	}
}

func TestGenerateSchema_Description(t *testing.T) {
	type Params struct {
		Query string `json:"query" description:"Search keywords"`
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	queryProp := props["query"].(map[string]any)
	if queryProp["description"] != "Search keywords" {
		t.Errorf("expected description 'Search keywords', got %v", queryProp["description"])
	}
}

func TestGenerateSchema_SkipsHiddenFields(t *testing.T) {
	type Params struct {
		Name   string `json:"name"`
		Secret string `json:"-"`
		hidden string //nolint:unused // intentionally unexported to test schema generation
	}
	schema := GenerateSchema[Params]()

	props := schema["properties"].(map[string]any)
	if len(props) != 1 {
		t.Errorf("expected 1 property, got %d: %v", len(props), props)
	}
	if _, ok := props["name"]; !ok {
		t.Error("expected property 'name'")
	}
}

func TestRegisterPreservesOrder(t *testing.T) {
	type Params struct{}
	r := NewRegistry(nil)
	noop := func(ctx context.Context, call *ToolCall, p Params) *Result { return ok(nil) }

	Register(r, ToolDef{Name: "charlie"}, noop)
	Register(r, ToolDef{Name: "alpha"}, noop)
	Register(r, ToolDef{Name: "bravo"}, noop)

	tools := r.GetAllTools()
	want := []string{"charlie", "alpha", "bravo"}
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tools[%d] = %s, want %s", i, tools[i].Name, name)
		}
	}
}

func TestCallToolRunsHandler(t *testing.T) {
	type Params struct {
		Title string `json:"title"`
	}
	r := NewRegistry(nil)

	var gotCall *ToolCall
	Register(r, ToolDef{Name: "echo"}, func(ctx context.Context, call *ToolCall, p Params) *Result {
		gotCall = call
		return ok(p.Title)
	})

	call := &ToolCall{Name: "echo", Namespace: "default"}
	ctx := WithToolCall(context.Background(), call)
	res, err := r.CallTool(ctx, "echo", json.RawMessage(`{"title":"hello"}`))
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.Success || res.Data != "hello" {
		t.Errorf("result = %+v, want success with data hello", res)
	}
	if gotCall != call {
		t.Error("handler did not receive the call from context")
	}
}

func TestCallToolUnknown(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.CallTool(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if err.Error() != "unknown tool: nope" {
		t.Errorf("expected 'unknown tool: nope', got %q", err.Error())
	}
}

func TestCallToolMissingRequired(t *testing.T) {
	type Params struct {
		Action string `json:"action"`
		Title  string `json:"title,omitempty"`
	}
	r := NewRegistry(nil)
	Register(r, ToolDef{Name: "strict"}, func(ctx context.Context, call *ToolCall, p Params) *Result {
		return ok(nil)
	})

	for _, args := range []string{`{}`, `{"action":null}`, `{"action":""}`} {
		res, err := r.CallTool(context.Background(), "strict", json.RawMessage(args))
		if err != nil {
			t.Fatalf("CallTool(%s): %v", args, err)
		}
		if res.Success {
			t.Errorf("args %s: expected failure", args)
		}
		if res.ErrorCode != CodeValidation {
			t.Errorf("args %s: error_code = %s, want %s", args, res.ErrorCode, CodeValidation)
		}
		if res.Error != "missing required parameter(s): action" {
			t.Errorf("args %s: error = %q", args, res.Error)
		}
	}
}

func TestCallToolRejectsWrongParamType(t *testing.T) {
	type Params struct {
		Limit int `json:"limit,omitempty"`
	}
	r := NewRegistry(nil)
	Register(r, ToolDef{Name: "typed"}, func(ctx context.Context, call *ToolCall, p Params) *Result {
		return ok(p.Limit)
	})

	res, err := r.CallTool(context.Background(), "typed", json.RawMessage(`{"limit":"ten"}`))
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.Success || res.ErrorCode != CodeInvalidParams {
		t.Errorf("result = %+v, want %s failure", res, CodeInvalidParams)
	}
}

func TestCallToolRecoversPanic(t *testing.T) {
	type Params struct{}
	r := NewRegistry(nil)
	Register(r, ToolDef{Name: "boom"}, func(ctx context.Context, call *ToolCall, p Params) *Result {
		panic("kaboom")
	})

	res, err := r.CallTool(context.Background(), "boom", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure from a panicking handler")
	}
	if res.ErrorCode != CodeInternal {
		t.Errorf("error_code = %s, want %s", res.ErrorCode, CodeInternal)
	}
	if res.Error != "internal error in boom" {
		t.Errorf("error = %q, want 'internal error in boom'", res.Error)
	}
}

func TestCallToolAppliesDeadline(t *testing.T) {
	type Params struct{}
	r := NewRegistry(func(tool string) time.Duration {
		if tool == "timed" {
			return time.Hour
		}
		return 0
	})

	var hadDeadline bool
	probe := func(ctx context.Context, call *ToolCall, p Params) *Result {
		_, hadDeadline = ctx.Deadline()
		return ok(nil)
	}
	Register(r, ToolDef{Name: "timed"}, probe)
	Register(r, ToolDef{Name: "unbounded"}, probe)

	if _, err := r.CallTool(context.Background(), "timed", nil); err != nil {
		t.Fatalf("CallTool(timed): %v", err)
	}
	if !hadDeadline {
		t.Error("expected a deadline on the timed tool")
	}

	if _, err := r.CallTool(context.Background(), "unbounded", nil); err != nil {
		t.Fatalf("CallTool(unbounded): %v", err)
	}
	if hadDeadline {
		t.Error("expected no deadline when the timeout is zero")
	}
}

func TestToolCallContextRoundTrip(t *testing.T) {
	if got := ToolCallFromContext(context.Background()); got != nil {
		t.Errorf("expected nil call on a bare context, got %+v", got)
	}

	call := &ToolCall{Name: "x", Namespace: "default"}
	ctx := WithToolCall(context.Background(), call)
	if got := ToolCallFromContext(ctx); got != call {
		t.Errorf("expected the stored call back, got %+v", got)
	}
}
