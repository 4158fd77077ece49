package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
)

// Options selects and configures the built-in tools.
type Options struct {
	Enabled       []string // empty enables every built-in
	ImageDir      string
	FetchMaxBytes int
	FetchDomains  []string
	OpenAI        OpenAIToolConfig // image and search tools need an API key
	HTTPClient    *http.Client
	Policy        *RetryPolicy
	Logger        *slog.Logger
}

func (o Options) enabled(name string) bool {
	return len(o.Enabled) == 0 || slices.Contains(o.Enabled, name)
}

// BuiltinNames lists every built-in tool name.
func BuiltinNames() []string {
	return []string{"crypto_prices", "fetch_url", "generate_image", "get_time", "text_stats", "web_search"}
}

// WithDefaults creates a registry holding the enabled built-in tools.
// Returns error if any tool registration fails.
func WithDefaults(opts Options) (*Registry, error) {
	regOpts := []RegistryOption{WithRegistryLogger(opts.Logger)}
	if opts.Policy != nil {
		regOpts = append(regOpts, WithRetryPolicy(*opts.Policy))
	}
	registry := NewRegistry(regOpts...)

	candidates := []Tool{
		NewTimeTool(),
		NewTextStatsTool(),
		NewCryptoPricesTool(opts.HTTPClient, ""),
		NewFetchURLTool(opts.HTTPClient, opts.FetchMaxBytes).WithAllowedDomains(opts.FetchDomains),
	}
	if opts.OpenAI.APIKey != "" {
		candidates = append(candidates, NewImageTool(opts.OpenAI, opts.ImageDir), NewSearchTool(opts.OpenAI))
	} else {
		registry.logger.Debug("no OpenAI key, image and search tools disabled")
	}

	for _, t := range candidates {
		if !opts.enabled(t.Metadata().Name) {
			continue
		}
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register default tools: %w", err)
		}
	}

	return registry, nil
}
