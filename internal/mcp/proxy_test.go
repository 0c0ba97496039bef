package mcp

import (
	"context"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/apexion-ai/turnkit/internal/permission"
	"github.com/apexion-ai/turnkit/internal/tools"
)

type echoInput struct {
	Text string `json:"text" jsonschema:"text to echo back"`
}

// connectFakeServer serves one "echo" tool over in-memory transports and
// returns a manager connected to it as server "fake".
func connectFakeServer(t *testing.T) *Manager {
	t.Helper()
	ctx := context.Background()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "fake", Version: "v0.0.1"}, nil)
	mcpsdk.AddTool(server, &mcpsdk.Tool{Name: "echo", Description: "Echo text"},
		func(_ context.Context, _ *mcpsdk.CallToolRequest, in echoInput) (*mcpsdk.CallToolResult, any, error) {
			if in.Text == "fail" {
				return &mcpsdk.CallToolResult{
					IsError: true,
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "refused"}},
				}, nil, nil
			}
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "echo: " + in.Text}},
			}, nil, nil
		})

	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	m := NewManager(&MCPConfig{MCPServers: map[string]ServerConfig{"fake": {Command: "unused"}}}, nil)
	m.servers["fake"].transport = clientT
	t.Cleanup(m.Close)

	connected, errs := m.EnsureConnected(ctx, []string{"fake"})
	require.Empty(t, errs)
	require.Equal(t, []string{"fake"}, connected)
	return m
}

func TestRegisterToolsAndDispatch(t *testing.T) {
	m := connectFakeServer(t)
	require.Equal(t, "connected (1 tools)", m.Status()["fake"])

	reg := tools.NewRegistry()
	require.Equal(t, 1, RegisterTools(m, reg))

	tool, ok := reg.Get("mcp__fake__echo")
	require.True(t, ok)
	require.Equal(t, "[MCP: fake] Echo text", tool.Description())
	require.Contains(t, tool.Parameters(), "text")

	d := tools.NewDispatcher(tools.DispatcherOptions{})
	results := d.Dispatch(context.Background(), []tools.ToolCall{
		{ID: "1", Name: "mcp__fake__echo", Arguments: map[string]any{"text": "hi"}},
		{ID: "2", Name: "mcp__fake__echo", Arguments: map[string]any{"text": "fail"}},
	}, reg, permission.Any())

	require.Empty(t, results[0].Error)
	require.Equal(t, "echo: hi", results[0].Output)
	require.Equal(t, "refused", results[1].Error)
}

func TestToolNameRoundTrip(t *testing.T) {
	name := ToolName("filesystem", "read_file")
	require.Equal(t, "mcp__filesystem__read_file", name)

	server, tool, ok := SplitToolName(name)
	require.True(t, ok)
	require.Equal(t, "filesystem", server)
	require.Equal(t, "read_file", tool)

	for _, bad := range []string{"read_file", "mcp__", "mcp__server", "mcp____tool"} {
		_, _, ok := SplitToolName(bad)
		require.False(t, ok, bad)
	}
}

func TestExtractProperties(t *testing.T) {
	require.Empty(t, extractProperties(nil))
	require.Empty(t, extractProperties("not a schema"))
	require.Empty(t, extractProperties(map[string]any{"type": "object"}))

	props := extractProperties(map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
	})
	require.Contains(t, props, "path")
}
