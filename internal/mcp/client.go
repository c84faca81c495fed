// ABOUTME: MCP stdio client wrapper over mark3labs/mcp-go
// ABOUTME: Spawns the tool server subprocess, lists tools, and executes tool calls

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/vespucci-ai/vespucci-gateway/internal/config"
)

const (
	clientName    = "vespucci-gateway"
	clientVersion = "1.0.0"
)

// Tool describes a tool exposed by the connected MCP server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Client manages the connection to a single MCP tool server spawned as a
// stdio subprocess. Tool listing is cached at connect time; Call is safe for
// concurrent use (the underlying transport serializes requests).
type Client struct {
	session *mcpclient.Client
	logger  *slog.Logger

	mu    sync.RWMutex
	tools []Tool
}

// Connect spawns the configured MCP server command, initializes the session
// and fetches the tool list. The connect timeout from cfg bounds the
// initialize/list handshake, not the lifetime of the subprocess.
func Connect(ctx context.Context, cfg config.MCPConfig) (*Client, error) {
	logger := slog.Default().With("component", "mcp")

	logger.Info("starting MCP server",
		"command", cfg.Command,
		"args", strings.Join(cfg.Args, " "),
	)

	session, err := mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("starting MCP server %q: %w", cfg.Command, err)
	}

	c := &Client{
		session: session,
		logger:  logger,
	}

	initCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	initReq := mcplib.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcplib.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	if _, err := session.Initialize(initCtx, initReq); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("initializing MCP session: %w", err)
	}

	if err := c.refresh(initCtx); err != nil {
		_ = session.Close()
		return nil, err
	}

	logger.Info("connected to MCP server", "tools", len(c.tools))
	for _, t := range c.Tools() {
		logger.Debug("tool available", "name", t.Name, "description", t.Description)
	}

	return c, nil
}

// Tools returns the cached tool list.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tool(nil), c.tools...)
}

// ToolNames returns the names of the cached tools, in listing order.
func (c *Client) ToolNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tools))
	for _, t := range c.tools {
		names = append(names, t.Name)
	}
	return names
}

// Refresh re-fetches the tool list from the server.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) error {
	result, err := c.session.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("listing MCP tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return fmt.Errorf("encoding input schema for tool %q: %w", t.Name, err)
		}
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: defaultDescription(t.Name, t.Description),
			InputSchema: schema,
		})
	}

	c.mu.Lock()
	c.tools = tools
	c.mu.Unlock()
	return nil
}

// Call executes a tool on the server and returns its output flattened to
// text. A result flagged IsError is returned as an error carrying the text.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	c.logger.Info("calling tool", "name", name)

	req := mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.session.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("calling tool %q: %w", name, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", fmt.Errorf("tool %q: %s", name, text)
	}

	c.logger.Debug("tool result received", "name", name, "bytes", len(text))
	return text, nil
}

// Close terminates the MCP session and the server subprocess.
func (c *Client) Close() error {
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("closing MCP session: %w", err)
	}
	c.logger.Info("disconnected from MCP server")
	return nil
}

// defaultDescription substitutes a readable fallback for tools that ship
// without a description, turning "fetch-page" into "Tool for fetch page".
func defaultDescription(name, description string) string {
	if description != "" {
		return description
	}
	return "Tool for " + strings.ReplaceAll(name, "-", " ")
}

// flattenContent renders tool result contents to a single string.
// Text contents are joined by newlines; other content kinds are JSON-encoded.
func flattenContent(contents []mcplib.Content) string {
	parts := make([]string, 0, len(contents))
	for _, content := range contents {
		switch c := content.(type) {
		case mcplib.TextContent:
			parts = append(parts, c.Text)
		case *mcplib.TextContent:
			parts = append(parts, c.Text)
		default:
			if data, err := json.Marshal(content); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}
