package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/apexion-ai/turnkit/internal/tools"
)

const toolNamePrefix = "mcp__"

// ToolName composes the registry name of a remote tool: mcp__<server>__<tool>.
func ToolName(server, tool string) string {
	return toolNamePrefix + server + "__" + tool
}

// SplitToolName reverses ToolName. Server names must not contain "__".
func SplitToolName(name string) (server, tool string, ok bool) {
	rest, found := strings.CutPrefix(name, toolNamePrefix)
	if !found {
		return "", "", false
	}
	server, tool, ok = strings.Cut(rest, "__")
	if !ok || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// MCPToolProxy wraps a single MCP tool as a tools.Tool so the dispatcher can
// call it like a local handler.
//
// Tool name format: mcp__<server>__<tool>
// Example: mcp__filesystem__read_file
type MCPToolProxy struct {
	serverName string
	tool       *mcpsdk.Tool
	manager    *Manager
	fullName   string
}

// Ensure MCPToolProxy implements tools.Tool.
var _ tools.Tool = (*MCPToolProxy)(nil)

func (p *MCPToolProxy) Name() string { return p.fullName }

func (p *MCPToolProxy) Description() string {
	desc := p.tool.Description
	if desc == "" {
		return fmt.Sprintf("[MCP: %s] %s", p.serverName, p.tool.Name)
	}
	return fmt.Sprintf("[MCP: %s] %s", p.serverName, desc)
}

// Parameters extracts properties from InputSchema (any, actually map[string]any).
func (p *MCPToolProxy) Parameters() map[string]any {
	return extractProperties(p.tool.InputSchema)
}

// Execute forwards the call. Error content returned by the server becomes a
// handler error carrying that content as its message.
func (p *MCPToolProxy) Execute(ctx context.Context, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	output, isError, err := p.manager.CallTool(ctx, p.serverName, p.tool.Name, args)
	if err != nil {
		return nil, fmt.Errorf("mcp tool error: %w", err)
	}
	if isError {
		if output == "" {
			output = "mcp tool reported an error"
		}
		return nil, errors.New(output)
	}
	return output, nil
}

// RegisterTools registers all connected servers' tools from the manager into the registry.
// Returns the total number of tools registered.
func RegisterTools(manager *Manager, registry *tools.Registry) int {
	count := 0
	for serverName, serverTools := range manager.AllTools() {
		for _, t := range serverTools {
			registry.Register(&MCPToolProxy{
				serverName: serverName,
				tool:       t,
				manager:    manager,
				fullName:   ToolName(serverName, t.Name),
			})
			count++
		}
	}
	return count
}

// ── Schema conversion ────────────────────────────────────────────────────────

// extractProperties extracts JSON Schema properties from MCP Tool.InputSchema (any).
//
// When the MCP client receives tools from a server, InputSchema is a JSON-deserialized
// map[string]any with structure {"type":"object","properties":{...},...}.
func extractProperties(schema any) map[string]any {
	m, ok := schema.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	props, ok := m["properties"].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return props
}
