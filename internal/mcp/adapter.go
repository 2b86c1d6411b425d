package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codegate-ai/codegate/internal/tool"
)

// adapter exposes one remote MCP tool through the local capability
// contract. Its registry name is mcp__server__tool so permission rules can
// scope to a server (mcp__srv__*) or a single tool.
type adapter struct {
	conn    *serverConn
	mcpTool mcp.Tool
}

func newAdapter(conn *serverConn, t mcp.Tool) *adapter {
	return &adapter{conn: conn, mcpTool: t}
}

func (a *adapter) Name() string {
	return fmt.Sprintf("mcp__%s__%s", a.conn.name, a.mcpTool.Name)
}

func (a *adapter) Description() string { return a.mcpTool.Description }

func (a *adapter) Parameters() json.RawMessage {
	data, err := json.Marshal(a.mcpTool.InputSchema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}

func (a *adapter) IsReadOnly(input map[string]any) bool {
	hint := a.mcpTool.Annotations.ReadOnlyHint
	return hint != nil && *hint
}

func (a *adapter) IsConcurrencySafe(input map[string]any) bool {
	return a.IsReadOnly(input)
}

// NeedsPermissions is unconditionally true: remote tools run code this
// process cannot inspect.
func (a *adapter) NeedsPermissions(input map[string]any) bool { return true }

func (a *adapter) ValidateInput(input map[string]any) error { return nil }

func (a *adapter) Run(ctx context.Context, input map[string]any, tc *tool.Context) <-chan tool.ExecEvent {
	ch := make(chan tool.ExecEvent, 1)
	go func() {
		defer close(ch)
		result, err := a.call(ctx, input)
		if err != nil {
			ch <- tool.ExecEvent{Terminal: true, Err: err}
			return
		}
		ch <- tool.ExecEvent{Terminal: true, Result: result}
	}()
	return ch
}

func (a *adapter) call(ctx context.Context, input map[string]any) (*tool.Result, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = a.mcpTool.Name
	req.Params.Arguments = input

	result, err := a.conn.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp call %s: %w", a.Name(), err)
	}

	output := contentText(result.Content)
	if result.IsError {
		return nil, fmt.Errorf("mcp call %s: %s", a.Name(), output)
	}

	return &tool.Result{
		Title:  a.Name(),
		Output: output,
		Metadata: map[string]any{
			"server": a.conn.name,
			"tool":   a.mcpTool.Name,
		},
	}, nil
}

// contentText flattens the reply's text parts; non-text parts are noted by
// type rather than dropped silently.
func contentText(contents []mcp.Content) string {
	var parts []string
	for _, c := range contents {
		if text, ok := c.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
			continue
		}
		parts = append(parts, fmt.Sprintf("(unsupported content type %T)", c))
	}
	return strings.Join(parts, "\n")
}
