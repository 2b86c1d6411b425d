// Package mcp connects to Model Context Protocol servers and exposes their
// tools through the local tool registry under mcp__server__name aliases.
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/tool"
)

// Config describes one MCP server connection. A URL selects the HTTP
// transport; otherwise Command is launched over stdio.
type Config struct {
	Enabled bool              `json:"enabled"`
	Command []string          `json:"command,omitempty"`
	URL     string            `json:"url,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout int               `json:"timeout,omitempty"` // milliseconds
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Millisecond
	}
	return 10 * time.Second
}

type serverConn struct {
	name   string
	client *mcpclient.Client
	tools  []mcp.Tool
}

// Manager holds the connected MCP servers.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*serverConn
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{servers: make(map[string]*serverConn)}
}

// AddServer connects to a server and discovers its tools.
func (m *Manager) AddServer(ctx context.Context, name string, cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	c, err := newClient(cfg)
	if err != nil {
		return fmt.Errorf("mcp server %s: %w", name, err)
	}
	return m.adopt(ctx, name, c, cfg.timeout())
}

// AddInProcess attaches a server running in this process. Used for tests
// and for embedding local capability servers.
func (m *Manager) AddInProcess(ctx context.Context, name string, srv *server.MCPServer) error {
	c, err := mcpclient.NewInProcessClient(srv)
	if err != nil {
		return fmt.Errorf("mcp server %s: %w", name, err)
	}
	return m.adopt(ctx, name, c, 10*time.Second)
}

func newClient(cfg Config) (*mcpclient.Client, error) {
	if cfg.URL != "" {
		return mcpclient.NewStreamableHttpClient(cfg.URL)
	}
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("either url or command is required")
	}
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	return mcpclient.NewStdioMCPClient(cfg.Command[0], env, cfg.Command[1:]...)
}

func (m *Manager) adopt(ctx context.Context, name string, c *mcpclient.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		c.Close()
		return fmt.Errorf("mcp server %s: start: %w", name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "codegate", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("mcp server %s: initialize: %w", name, err)
	}

	toolsResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return fmt.Errorf("mcp server %s: list tools: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.servers[name]; exists {
		c.Close()
		return fmt.Errorf("mcp server %s: already connected", name)
	}
	m.servers[name] = &serverConn{name: name, client: c, tools: toolsResult.Tools}

	logging.Component("mcp").Info().
		Str("server", name).
		Int("tools", len(toolsResult.Tools)).
		Msg("mcp server connected")
	return nil
}

// Tools returns every discovered tool wrapped as a local tool.Tool.
func (m *Manager) Tools() []tool.Tool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var tools []tool.Tool
	for _, conn := range m.servers {
		for _, t := range conn.tools {
			tools = append(tools, newAdapter(conn, t))
		}
	}
	return tools
}

// Register adds every discovered tool to the registry.
func (m *Manager) Register(r *tool.Registry) {
	for _, t := range m.Tools() {
		r.Register(t)
	}
}

// Close shuts down all server connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, conn := range m.servers {
		if err := conn.client.Close(); err != nil {
			logging.Component("mcp").Warn().
				Str("server", name).
				Err(err).
				Msg("mcp server close failed")
		}
	}
	m.servers = make(map[string]*serverConn)
}
