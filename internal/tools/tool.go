// Package tools defines the tool contract, the registry, the concurrent
// dispatcher and the built-in tool set.
package tools

import "context"

// HandlerFunc executes a tool with decoded arguments. The returned value is
// opaque to the dispatcher.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is the unified interface for every invocable tool, local or remote.
type Tool interface {
	// Name returns the unique snake_case tool name, e.g. "read_file".
	Name() string

	// Description tells a model when to use the tool.
	Description() string

	// Parameters returns the JSON Schema properties of the arguments.
	Parameters() map[string]any

	// Execute runs the tool. ctx is cancelled when the dispatcher stops
	// waiting; handlers should return promptly once it is done.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolDefinition is a Tool backed by a plain function.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     HandlerFunc
}

type definedTool struct{ def ToolDefinition }

func (t definedTool) Name() string        { return t.def.Name }
func (t definedTool) Description() string { return t.def.Description }

func (t definedTool) Parameters() map[string]any {
	if t.def.Parameters == nil {
		return map[string]any{}
	}
	return t.def.Parameters
}

func (t definedTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.def.Handler(ctx, args)
}

// ToolCall is one invocation request issued by an agent.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the outcome of one ToolCall. Exactly one of Output and Error
// is meaningful: Error is non-empty on failure.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Output     any    `json:"output"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Failed reports whether the call produced an error.
func (r ToolResult) Failed() bool { return r.Error != "" }
