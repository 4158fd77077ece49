// Package config provides application settings loaded from a YAML or
// JSON file.
//
// Settings are created via Load() which handles:
// - ${ENV} expansion before decoding
// - Default value application
// - Legacy key migration (llm.models, llm.api_keys)
//
// Provider routing is derived with Routes(); Validate() reports every
// problem at once.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/mcp"
)

// Defaults applied by Load.
const (
	DefaultHistorySize   = 24
	DefaultTimeout       = 180
	DefaultMaxToolRounds = 8
	DefaultPersonality   = "a helpful assistant"
	DefaultUsageDB       = "parley_usage.db"
)

// DefaultPrompt is the system prompt prefix and suffix around the persona.
var DefaultPrompt = []string{"you are ", "."}

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml", "config.json"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "parley", "config.yaml"))
	}
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all application configuration.
type Config struct {
	Matrix    MatrixConfig   `yaml:"matrix"`
	LLM       LLMConfig      `yaml:"llm"`
	Commands  CommandsConfig `yaml:"commands"`
	Tools     ToolsConfig    `yaml:"tools"`
	UsageDB   string         `yaml:"usage_db"`
	Markdown  *bool          `yaml:"markdown"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
}

// MatrixConfig holds homeserver credentials and rooms.
type MatrixConfig struct {
	Server      string   `yaml:"server"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	AccessToken string   `yaml:"access_token"`
	DeviceID    string   `yaml:"device_id"`
	Channels    []string `yaml:"channels"`
	Admins      []string `yaml:"admins"`

	// Admin is the legacy single-admin key, merged into Admins.
	Admin string `yaml:"admin"`
}

// ProviderConfig is one provider entry. Unset fields take the built-in
// defaults for known provider names.
type ProviderConfig struct {
	BaseURL      string   `yaml:"base_url"`
	APIKey       string   `yaml:"api_key"`
	Protocol     string   `yaml:"protocol"`
	Local        *bool    `yaml:"local"`
	StripOptions *bool    `yaml:"strip_options"`
	Models       []string `yaml:"models"`
}

// LLMConfig holds provider, model and prompt settings.
type LLMConfig struct {
	Providers        map[string]ProviderConfig `yaml:"providers"`
	FallbackProvider string                    `yaml:"fallback_provider"`
	DefaultModel     string                    `yaml:"default_model"`
	Personality      string                    `yaml:"personality"`

	// Prompt is [prefix, suffix] or [prefix, suffix, extra].
	Prompt         []string    `yaml:"prompt"`
	Options        llm.Options `yaml:"options"`
	NoOptionModels []string    `yaml:"no_option_models"`
	HistorySize    int         `yaml:"history_size"`

	// Timeout is the per-call timeout in seconds.
	Timeout       int `yaml:"timeout"`
	MaxToolRounds int `yaml:"max_tool_rounds"`

	MCPServers map[string]mcp.ServerConfig `yaml:"mcp_servers"`

	// MCPConfig optionally points at an mcp.json file whose servers are
	// merged into MCPServers.
	MCPConfig string `yaml:"mcp_config"`

	// Legacy layout: provider -> models, provider -> key, local hosts.
	Models      map[string][]string `yaml:"models"`
	APIKeys     map[string]string   `yaml:"api_keys"`
	OllamaURL   string              `yaml:"ollama_url"`
	LMStudioURL string              `yaml:"lmstudio_url"`
}

// CommandsConfig holds chat command settings.
type CommandsConfig struct {
	Prefix   string `yaml:"prefix"`
	HelpFile string `yaml:"help_file"`
}

// ToolsConfig holds built-in tool settings.
type ToolsConfig struct {
	// Enabled lists built-in tools to register; empty registers all.
	Enabled       []string `yaml:"enabled"`
	Disabled      bool     `yaml:"disabled"`
	ImageDir      string   `yaml:"image_dir"`
	FetchMaxBytes int      `yaml:"fetch_max_bytes"`
	FetchDomains  []string `yaml:"fetch_domains"`
}

// Load reads configuration from a YAML or JSON file, expanding
// environment variables and applying defaults. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes configuration from data.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.HistorySize == 0 {
		c.LLM.HistorySize = DefaultHistorySize
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = DefaultTimeout
	}
	if c.LLM.MaxToolRounds == 0 {
		c.LLM.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.LLM.Personality == "" {
		c.LLM.Personality = DefaultPersonality
	}
	// An explicit empty list disables option stripping.
	if c.LLM.NoOptionModels == nil {
		c.LLM.NoOptionModels = append([]string(nil), llm.DefaultNoOptionModels...)
	}
	if len(c.LLM.Prompt) == 0 {
		c.LLM.Prompt = append([]string(nil), DefaultPrompt...)
	}
	if c.Matrix.Admin != "" {
		c.Matrix.Admins = append(c.Matrix.Admins, c.Matrix.Admin)
		c.Matrix.Admin = ""
	}
	if c.UsageDB == "" {
		c.UsageDB = DefaultUsageDB
	}
}

// PromptParts returns the prefix, suffix and extra prompt parts.
func (c *Config) PromptParts() (prefix, suffix, extra string) {
	parts := c.LLM.Prompt
	if len(parts) > 0 {
		prefix = parts[0]
	}
	if len(parts) > 1 {
		suffix = parts[1]
	}
	if len(parts) > 2 {
		extra = parts[2]
	}
	return prefix, suffix, extra
}

// Timeout returns the per-call timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.LLM.Timeout) * time.Second
}

// MarkdownEnabled reports whether replies carry an HTML rendering.
func (c *Config) MarkdownEnabled() bool {
	return c.Markdown == nil || *c.Markdown
}

// MCPServers returns configured MCP servers, merged with the servers of
// the mcp_config file when one is set.
func (c *Config) MCPServers() (map[string]mcp.ServerConfig, error) {
	servers := make(map[string]mcp.ServerConfig, len(c.LLM.MCPServers))
	for name, s := range c.LLM.MCPServers {
		servers[name] = s
	}
	if c.LLM.MCPConfig == "" {
		return servers, nil
	}
	file, err := mcp.LoadConfig(c.LLM.MCPConfig)
	if err != nil {
		return nil, err
	}
	return file.Merge(servers), nil
}
