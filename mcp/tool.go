// MCP tool wrapper - makes server tools usable by the tool registry.
//
// Information Hiding:
// - Client lifecycle per server hidden
// - Schema decoding hidden
// - Result conversion hidden

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/richinex/parley/tools"
)

// ErrToolFailed is returned when a server reports isError.
var ErrToolFailed = errors.New("MCP tool reported an error")

// Manager owns the clients of every connected server and the tools they
// offer. The caller must call Close() when done to release resources.
type Manager struct {
	clients []*Client
	tools   []tools.Tool
	logger  *slog.Logger
}

// Connect starts every configured server and lists its tools. A server
// that fails to start or list is logged and skipped. The processes live
// until ctx is cancelled or Close is called.
func Connect(ctx context.Context, servers map[string]ServerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{logger: logger}

	for _, name := range ServerNames(servers) {
		client, err := NewClient(ctx, name, servers[name])
		if err != nil {
			logger.Error("failed to start MCP server", "server", name, "error", err)
			continue
		}

		infos, err := client.ListTools(ctx)
		if err != nil {
			logger.Error("failed to list tools from MCP server", "server", name, "error", err)
			client.Close()
			continue
		}

		m.clients = append(m.clients, client)
		for _, info := range infos {
			m.tools = append(m.tools, newTool(client, info))
		}
		logger.Info("MCP server connected", "server", name, "tools", len(infos))
	}
	return m
}

// Tools returns the discovered tools.
func (m *Manager) Tools() []tools.Tool {
	return m.tools
}

// RegisterAll adds every discovered tool to registry, replacing any
// built-in with the same name.
func (m *Manager) RegisterAll(registry *tools.Registry) {
	for _, t := range m.tools {
		if registry.Override(t) {
			m.logger.Info("MCP tool shadows built-in", "tool", t.Metadata().Name)
		}
	}
}

// Close closes every client and releases resources.
func (m *Manager) Close() error {
	for _, c := range m.clients {
		c.Close()
	}
	m.clients = nil
	return nil
}

// Tool wraps one server tool and implements tools.Tool.
type Tool struct {
	client      *Client
	name        string
	description string
	schema      map[string]any
}

func newTool(client *Client, info ToolInfo) *Tool {
	return &Tool{
		client:      client,
		name:        info.Name,
		description: info.Description,
		schema:      decodeSchema(info.InputSchema),
	}
}

// Metadata returns the tool metadata taken from the server.
func (t *Tool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        t.name,
		Description: t.description,
		Schema:      t.schema,
	}
}

// Execute calls the tool on its server.
func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (tools.Result, error) {
	result, err := t.client.CallTool(ctx, t.name, args)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}
	if result.IsError {
		return nil, fmt.Errorf("%w: %s", ErrToolFailed, result.Text())
	}
	return toResult(result), nil
}

// toResult prefers structured content and falls back to the joined
// text blocks.
func toResult(result *CallResult) tools.Result {
	if len(result.StructuredContent) > 0 && json.Valid(result.StructuredContent) {
		return tools.TextResult{Text: string(result.StructuredContent)}
	}
	return tools.TextResult{Text: result.Text()}
}

// decodeSchema returns the input schema as a map, or an empty object
// schema when the server sent none.
func decodeSchema(raw json.RawMessage) map[string]any {
	var schema map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &schema); err != nil {
			schema = nil
		}
	}
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}
