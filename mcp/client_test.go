package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/richinex/parley/tools"
)

// TestHelperProcess is not a real test. It runs as a fake MCP server
// when re-executed by helperServer.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PARLEY_MCP_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	in := bufio.NewScanner(os.Stdin)
	out := json.NewEncoder(os.Stdout)
	for in.Scan() {
		var req struct {
			ID     *uint64         `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(in.Bytes(), &req); err != nil || req.ID == nil {
			continue
		}

		// A notification before every response exercises skipping.
		out.Encode(map[string]any{"jsonrpc": "2.0", "method": "notifications/message"})

		var result any
		switch req.Method {
		case "initialize":
			result = map[string]any{"protocolVersion": ProtocolVersion, "capabilities": map[string]any{}}
		case "tools/list":
			result = map[string]any{"tools": []map[string]any{
				{"name": "echo", "description": "Echo text", "inputSchema": map[string]any{
					"type": "object", "properties": map[string]any{"text": map[string]any{"type": "string"}}, "required": []string{"text"},
				}},
				{"name": "get_time", "description": "Server clock"},
				{"name": "fail", "description": "Always fails"},
			}}
		case "tools/call":
			var p struct {
				Name      string            `json:"name"`
				Arguments map[string]string `json:"arguments"`
			}
			json.Unmarshal(req.Params, &p)
			switch p.Name {
			case "echo":
				result = map[string]any{"content": []map[string]string{{"type": "text", "text": p.Arguments["text"]}}}
			case "get_time":
				result = map[string]any{"content": []any{}, "structuredContent": map[string]string{"now": "noon"}}
			default:
				result = map[string]any{"content": []map[string]string{{"type": "text", "text": "boom"}}, "isError": true}
			}
		default:
			out.Encode(map[string]any{"jsonrpc": "2.0", "id": *req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
			continue
		}
		out.Encode(map[string]any{"jsonrpc": "2.0", "id": *req.ID, "result": result})
	}
}

func helperServer() ServerConfig {
	return ServerConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess"},
		Env:     map[string]string{"PARLEY_MCP_HELPER": "1"},
	}
}

func TestClientHandshakeAndCalls(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, "helper", helperServer())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	infos, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(infos) != 3 || infos[0].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", infos)
	}

	res, err := client.CallTool(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.Text() != "hi" {
		t.Errorf("Text() = %q", res.Text())
	}

	if _, err := client.call(ctx, "resources/list", nil); err == nil || !strings.Contains(err.Error(), "method not found") {
		t.Errorf("expected MCP error, got %v", err)
	}
}

func TestManagerRegistersAndShadows(t *testing.T) {
	ctx := context.Background()
	manager := Connect(ctx, map[string]ServerConfig{
		"helper": helperServer(),
		"broken": {Command: filepath.Join(t.TempDir(), "does-not-exist")},
	}, nil)
	defer manager.Close()

	if got := len(manager.Tools()); got != 3 {
		t.Fatalf("expected 3 tools from the working server, got %d", got)
	}

	registry, err := tools.WithDefaults(tools.Options{Enabled: []string{"get_time", "text_stats"}})
	if err != nil {
		t.Fatal(err)
	}
	manager.RegisterAll(registry)

	tests := []struct {
		tool    string
		args    string
		want    string
		wantErr error
	}{
		{tool: "echo", args: `{"text":"plain"}`, want: `{"result":"plain"}`},
		{tool: "echo", args: `{"text":"{\"ok\":true}"}`, want: `{"ok":true}`},
		{tool: "get_time", args: `{}`, want: `{"now":"noon"}`},
		{tool: "fail", args: `{}`, wantErr: ErrToolFailed},
		{tool: "echo", args: `{}`, wantErr: tools.ErrInvalidArguments},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.tool, tt.args), func(t *testing.T) {
			res, err := registry.Execute(ctx, tt.tool, json.RawMessage(tt.args))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if got := res.Payload(); got != tt.want {
				t.Errorf("payload = %s, want %s", got, tt.want)
			}
		})
	}

	if !registry.Has("text_stats") {
		t.Error("unrelated built-in lost")
	}
}

func TestDecodeSchemaDefaults(t *testing.T) {
	schema := decodeSchema(nil)
	if schema["type"] != "object" {
		t.Errorf("missing schema should default to object, got %v", schema)
	}
	schema = decodeSchema(json.RawMessage(`{"properties":{}}`))
	if schema["type"] != "object" {
		t.Errorf("type should be filled in, got %v", schema)
	}
}

func TestLoadConfigMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	data := `{"mcpServers":{"memory":{"command":"npx","args":["-y","server-memory"]},"dup":{"command":"other"}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	merged := cfg.Merge(map[string]ServerConfig{"dup": {Command: "mine"}})
	if merged["dup"].Command != "mine" {
		t.Error("existing server should win")
	}
	if merged["memory"].Command != "npx" || len(merged["memory"].Args) != 2 {
		t.Errorf("memory server = %+v", merged["memory"])
	}
	if names := ServerNames(merged); strings.Join(names, ",") != "dup,memory" {
		t.Errorf("ServerNames = %v", names)
	}
}
