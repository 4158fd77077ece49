// MCP server configuration.
//
// Servers are normally listed under llm.mcp_servers in the bot config.
// A standalone file in the Anthropic-style format is also accepted:
//
//	{
//	  "mcpServers": {
//	    "memory": {
//	      "command": "npx",
//	      "args": ["-y", "@modelcontextprotocol/server-memory"]
//	    }
//	  }
//	}
package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Config represents the MCP configuration file format.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig describes how to launch a single MCP server.
type ServerConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args" yaml:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// LoadConfig loads MCP configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Merge adds servers from c that are not already in dst.
func (c *Config) Merge(dst map[string]ServerConfig) map[string]ServerConfig {
	if dst == nil {
		dst = make(map[string]ServerConfig, len(c.MCPServers))
	}
	for name, server := range c.MCPServers {
		if _, exists := dst[name]; !exists {
			dst[name] = server
		}
	}
	return dst
}

// ServerNames returns the configured server names in sorted order.
func ServerNames(servers map[string]ServerConfig) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
