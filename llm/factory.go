// Provider factory - builds a backend for a routed provider entry.
//
// Every provider speaks one wire protocol. Most hosted and self-hosted
// backends accept the OpenAI chat completions contract, so that is the
// default; Anthropic and Gemini can also be reached through their
// native SDKs.

package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// Protocol identifies the wire protocol a provider speaks.
type Protocol int

const (
	// ProtocolOpenAI is the OpenAI chat completions contract.
	ProtocolOpenAI Protocol = iota
	// ProtocolAnthropic is the native Anthropic Messages API.
	ProtocolAnthropic
	// ProtocolGemini is the native Google Gemini API.
	ProtocolGemini
)

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolOpenAI:
		return "openai"
	case ProtocolAnthropic:
		return "anthropic"
	case ProtocolGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// ParseProtocol parses a protocol name (case-insensitive). The empty
// string selects ProtocolOpenAI.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "openai", "openai-compatible":
		return ProtocolOpenAI, nil
	case "anthropic", "claude":
		return ProtocolAnthropic, nil
	case "gemini", "google":
		return ProtocolGemini, nil
	default:
		return 0, fmt.Errorf("unknown protocol: %s", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// NewProvider builds the backend for a named provider entry.
// httpClient may be nil.
func NewProvider(name string, cfg ProviderConfig, httpClient *http.Client) (Provider, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	switch cfg.Protocol {
	case ProtocolOpenAI:
		return NewOpenAIProvider(name, cfg.BaseURL, cfg.APIKey, httpClient), nil
	case ProtocolAnthropic:
		return NewAnthropicProvider(name, cfg.BaseURL, cfg.APIKey, httpClient), nil
	case ProtocolGemini:
		return NewGeminiProvider(name, cfg.BaseURL, cfg.APIKey, httpClient), nil
	default:
		return nil, fmt.Errorf("provider %s: unknown protocol %v", name, cfg.Protocol)
	}
}
