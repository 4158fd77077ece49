// Package mcp provides a Model Context Protocol (MCP) client.
//
// MCP servers are external processes that offer tools over JSON-RPC on
// stdin/stdout. Their tools are registered next to the built-ins and
// shadow a built-in of the same name.
//
// Information Hiding:
// - Process management hidden
// - JSON-RPC protocol details hidden
// - Request ID tracking and notification skipping hidden

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// ProtocolVersion is the MCP revision announced during initialize.
const ProtocolVersion = "2024-11-05"

// Client communicates with an MCP server via JSON-RPC over stdin/stdout.
type Client struct {
	name      string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	requestID uint64
	mu        sync.Mutex
	closeOnce sync.Once
}

// rpcRequest is a JSON-RPC request or notification (ID == nil).
type rpcRequest struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      *uint64 `json:"id,omitempty"`
	Method  string  `json:"method"`
	Params  any     `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC response from an MCP server.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ToolInfo describes a tool available on the MCP server.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ContentBlock is one item of a tools/call result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// CallResult is the result of tools/call.
type CallResult struct {
	Content           []ContentBlock  `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// Text joins the text blocks of the result.
func (r *CallResult) Text() string {
	var texts []string
	for _, block := range r.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// NewClient starts the server described by cfg and performs the
// initialize handshake. The process lives until ctx is cancelled or
// Close is called.
func NewClient(ctx context.Context, name string, cfg ServerConfig) (*Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("MCP server %q has no command", name)
	}
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start MCP server %q: %w", name, err)
	}

	client := &Client{
		name:   name,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}

	if err := client.initialize(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize MCP server %q: %w", name, err)
	}

	return client, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// initialize sends the initialize request followed by the initialized
// notification.
func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "parley",
			"version": "0.1.0",
		},
	}

	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify("notifications/initialized")
}

// ListTools returns all tools available on the MCP server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var listed struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, fmt.Errorf("failed to parse tools list: %w", err)
	}

	return listed.Tools, nil
}

// CallTool calls a tool on the MCP server with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallResult, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	params := map[string]any{
		"name":      name,
		"arguments": arguments,
	}

	raw, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var result CallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool result: %w", err)
	}
	return &result, nil
}

// notify sends a notification, which has no response.
func (c *Client) notify(method string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(rpcRequest{JSONRPC: "2.0", Method: method})
}

func (c *Client) write(req rpcRequest) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(reqJSON, '\n')); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// call sends a JSON-RPC request and returns the result. Server
// notifications and responses to other IDs are skipped.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check context before sending
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c.requestID++
	id := c.requestID
	if err := c.write(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	for {
		line, err := c.stdout.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var response rpcResponse
		if err := json.Unmarshal(line, &response); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if response.ID == nil || *response.ID != id {
			continue
		}

		if response.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", response.Error.Code, response.Error.Message)
		}
		return response.Result, nil
	}
}

// Close stops the MCP server process and releases resources. It does not
// wait for an in-flight call; killing the process unblocks it.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.stdin != nil {
			c.stdin.Close()
		}
		if c.cmd != nil && c.cmd.Process != nil {
			_ = c.cmd.Process.Kill() // Intentionally ignore - cleanup
			_ = c.cmd.Wait()         // Intentionally ignore - cleanup
		}
	})
	return nil
}
