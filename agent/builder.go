// Engine builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"fmt"
	"log/slog"

	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/storage"
)

// Builder provides fluent configuration for creating engines.
// Usage: agent.NewBuilder(gateway, history).DefaultModel("m").Build()
type Builder struct {
	gateway Gateway
	history storage.HistoryStore
	prompts *storage.PromptBuilder
	loop    *Loop
	config  Config
	logger  *slog.Logger
}

// NewBuilder creates a builder over a gateway and a history store.
func NewBuilder(gateway Gateway, history storage.HistoryStore) *Builder {
	return &Builder{
		gateway: gateway,
		history: history,
		config:  DefaultConfig(),
	}
}

// DefaultModel sets the global model at startup.
func (b *Builder) DefaultModel(model string) *Builder {
	b.config.DefaultModel = model
	return b
}

// Options sets the sampling options sent with every completion.
func (b *Builder) Options(opts llm.Options) *Builder {
	b.config.Options = opts
	return b
}

// Prompts sets the prompt builder whose verbose flag the engine controls.
func (b *Builder) Prompts(p *storage.PromptBuilder) *Builder {
	b.prompts = p
	return b
}

// Loop sets the tool-calling loop. Without one, tools stay off.
func (b *Builder) Loop(l *Loop) *Builder {
	b.loop = l
	return b
}

// ToolsEnabled sets the initial tools toggle.
func (b *Builder) ToolsEnabled(enabled bool) *Builder {
	b.config.ToolsEnabled = enabled
	return b
}

// Logger sets the logger.
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and creates the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.gateway == nil {
		return nil, fmt.Errorf("engine requires a gateway")
	}
	if b.history == nil {
		return nil, fmt.Errorf("engine requires a history store")
	}
	if b.config.DefaultModel == "" {
		return nil, fmt.Errorf("engine requires a default model")
	}

	prompts := b.prompts
	if prompts == nil {
		if h, ok := b.history.(interface{ Prompts() *storage.PromptBuilder }); ok {
			prompts = h.Prompts()
		} else {
			prompts = storage.NewPromptBuilder("", "", "", "")
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	return newEngine(b.config, b.gateway, b.history, prompts, b.loop, logger), nil
}
