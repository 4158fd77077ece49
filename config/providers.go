// Built-in provider defaults and routing table construction.
//
// Information Hiding:
// - Endpoint defaults per provider hidden
// - Credential lookup order hidden
// - Legacy key migration hidden

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/richinex/parley/llm"
)

// LocalAPIKey is the placeholder credential sent to local backends.
const LocalAPIKey = "hello_friend"

// providerInfo holds defaults for a known provider.
type providerInfo struct {
	baseURL      string
	protocol     llm.Protocol
	local        bool
	stripOptions bool
}

// Known providers and their defaults.
var providers = map[string]providerInfo{
	"openai":    {baseURL: "https://api.openai.com/v1"},
	"xai":       {baseURL: "https://api.x.ai/v1"},
	"google":    {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", stripOptions: true},
	"mistral":   {baseURL: "https://api.mistral.ai/v1"},
	"anthropic": {protocol: llm.ProtocolAnthropic},
	"deepseek":  {baseURL: "https://api.deepseek.com/v1"},
	"qwen":      {baseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1"},
	"ollama":    {baseURL: "http://localhost:11434/v1", local: true},
	"lmstudio":  {baseURL: "http://localhost:1234/v1", local: true},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"gemini": "google",
	"grok":   "xai",
	"gpt":    "openai",
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// APIKeyEnv returns the environment variable holding a provider's key.
func APIKeyEnv(provider string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(normalizeProvider(provider))) + "_API_KEY"
}

// providerEntries merges the providers map with the legacy keys. Explicit
// providers entries win over legacy ones field by field.
func (c *Config) providerEntries() map[string]ProviderConfig {
	out := make(map[string]ProviderConfig)
	for name, models := range c.LLM.Models {
		name = normalizeProvider(name)
		entry := out[name]
		entry.Models = append(entry.Models, models...)
		out[name] = entry
	}
	for name, key := range c.LLM.APIKeys {
		name = normalizeProvider(name)
		entry := out[name]
		entry.APIKey = key
		out[name] = entry
	}
	if c.LLM.OllamaURL != "" {
		entry := out["ollama"]
		entry.BaseURL = hostURL(c.LLM.OllamaURL)
		out["ollama"] = entry
	}
	if c.LLM.LMStudioURL != "" {
		entry := out["lmstudio"]
		entry.BaseURL = hostURL(c.LLM.LMStudioURL)
		out["lmstudio"] = entry
	}

	for name, p := range c.LLM.Providers {
		name = normalizeProvider(name)
		entry := out[name]
		if p.BaseURL != "" {
			entry.BaseURL = p.BaseURL
		}
		if p.APIKey != "" {
			entry.APIKey = p.APIKey
		}
		if p.Protocol != "" {
			entry.Protocol = p.Protocol
		}
		if p.Local != nil {
			entry.Local = p.Local
		}
		if p.StripOptions != nil {
			entry.StripOptions = p.StripOptions
		}
		if len(p.Models) > 0 {
			entry.Models = p.Models
		}
		out[name] = entry
	}
	return out
}

// hostURL turns a legacy "host:port" into an OpenAI-compatible base URL.
func hostURL(hostport string) string {
	if strings.Contains(hostport, "://") {
		return strings.TrimSuffix(hostport, "/")
	}
	return fmt.Sprintf("http://%s/v1", hostport)
}

// resolveProvider applies built-in defaults and credential lookup to one
// entry.
func resolveProvider(name string, p ProviderConfig) (llm.ProviderConfig, error) {
	info := providers[name]
	out := llm.ProviderConfig{
		BaseURL:      info.baseURL,
		Protocol:     info.protocol,
		Local:        info.local,
		StripOptions: info.stripOptions,
		Models:       append([]string(nil), p.Models...),
	}
	if p.Protocol != "" {
		protocol, err := llm.ParseProtocol(p.Protocol)
		if err != nil {
			return llm.ProviderConfig{}, fmt.Errorf("provider %s: %w", name, err)
		}
		out.Protocol = protocol
	}
	if p.BaseURL != "" {
		out.BaseURL = p.BaseURL
	}
	if p.Local != nil {
		out.Local = *p.Local
	}
	if p.StripOptions != nil {
		out.StripOptions = *p.StripOptions
	}

	out.APIKey = p.APIKey
	if out.APIKey == "" {
		out.APIKey = os.Getenv(APIKeyEnv(name))
	}
	if out.APIKey == "" && out.Local {
		out.APIKey = LocalAPIKey
	}
	return out, nil
}

// Routes builds the routing table from the configuration.
func (c *Config) Routes() (llm.RoutingTable, error) {
	table := llm.RoutingTable{
		Providers: make(map[string]llm.ProviderConfig),
		Fallback:  normalizeProvider(c.LLM.FallbackProvider),
	}
	entries := c.providerEntries()
	if table.Fallback != "" {
		if _, ok := entries[table.Fallback]; !ok {
			entries[table.Fallback] = ProviderConfig{}
		}
	}
	for name, entry := range entries {
		resolved, err := resolveProvider(name, entry)
		if err != nil {
			return llm.RoutingTable{}, err
		}
		table.Providers[name] = resolved
	}
	return table, nil
}

// OpenAIKey returns the credential used by OpenAI-backed tools.
func (c *Config) OpenAIKey() string {
	routes, err := c.Routes()
	if err != nil {
		return os.Getenv(APIKeyEnv("openai"))
	}
	if p, ok := routes.Providers["openai"]; ok && p.APIKey != "" {
		return p.APIKey
	}
	return os.Getenv(APIKeyEnv("openai"))
}
