package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegate-ai/codegate/internal/tool"
)

func echoServer() *server.MCPServer {
	s := server.NewMCPServer("echo", "1.0.0", server.WithToolCapabilities(true))

	echoTool := mcp.NewTool("echo",
		mcp.WithDescription("Echoes the message back"),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message to echo")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: mcp.ToBoolPtr(true)}),
	)
	s.AddTool(echoTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, ok := req.GetArguments()["message"].(string)
		if !ok {
			return mcp.NewToolResultError("message argument is required"), nil
		}
		return mcp.NewToolResultText("echo: " + message), nil
	})

	failTool := mcp.NewTool("fail", mcp.WithDescription("Always fails"))
	s.AddTool(failTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("intentional failure"), nil
	})

	return s
}

func connectedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	require.NoError(t, m.AddInProcess(context.Background(), "echo", echoServer()))
	t.Cleanup(m.Close)
	return m
}

func TestManagerDiscoversAliasedTools(t *testing.T) {
	m := connectedManager(t)

	tools := m.Tools()
	require.Len(t, tools, 2)

	names := make(map[string]tool.Tool)
	for _, tl := range tools {
		names[tl.Name()] = tl
	}
	require.Contains(t, names, "mcp__echo__echo")
	require.Contains(t, names, "mcp__echo__fail")

	echo := names["mcp__echo__echo"]
	assert.Equal(t, "Echoes the message back", echo.Description())
	assert.True(t, echo.IsReadOnly(nil), "annotation hint marks the tool read-only")
	assert.True(t, echo.NeedsPermissions(nil), "remote tools always pass the permission engine")

	fail := names["mcp__echo__fail"]
	assert.False(t, fail.IsReadOnly(nil), "no hint means not read-only")
}

func TestAdapterRun(t *testing.T) {
	m := connectedManager(t)
	registry := tool.NewRegistry("/tmp")
	m.Register(registry)

	echo, err := registry.Resolve("mcp__echo__echo")
	require.NoError(t, err)

	result, err := tool.Drain(echo.Run(context.Background(), map[string]any{"message": "hi"}, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", result.Output)
	assert.Equal(t, "echo", result.Metadata["server"])
}

func TestAdapterRunError(t *testing.T) {
	m := connectedManager(t)

	var fail tool.Tool
	for _, tl := range m.Tools() {
		if tl.Name() == "mcp__echo__fail" {
			fail = tl
		}
	}
	require.NotNil(t, fail)

	_, err := tool.Drain(fail.Run(context.Background(), map[string]any{}, nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intentional failure")
}

func TestAddServerValidation(t *testing.T) {
	m := NewManager()
	t.Cleanup(m.Close)

	assert.NoError(t, m.AddServer(context.Background(), "off", Config{Enabled: false}),
		"disabled servers are skipped, not errors")
	assert.Empty(t, m.Tools())

	err := m.AddServer(context.Background(), "broken", Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either url or command is required")
}

func TestDuplicateServerRejected(t *testing.T) {
	m := connectedManager(t)

	err := m.AddInProcess(context.Background(), "echo", echoServer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")
}

func TestAdapterParameters(t *testing.T) {
	m := connectedManager(t)
	for _, tl := range m.Tools() {
		if tl.Name() != "mcp__echo__echo" {
			continue
		}
		assert.Contains(t, string(tl.Parameters()), `"message"`)
		return
	}
	t.Fatal("mcp__echo__echo not found")
}
