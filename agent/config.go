// Engine configuration types.
//
// Information Hiding:
// - Default values hidden

package agent

import "github.com/richinex/parley/llm"

// Config holds engine configuration.
type Config struct {
	// DefaultModel is the global model at startup and after a reset.
	DefaultModel string

	// Options are forwarded with every completion.
	Options llm.Options

	// ToolsEnabled is the initial state of the tools toggle.
	ToolsEnabled bool
}

// DefaultConfig returns a configuration with tools enabled.
func DefaultConfig() Config {
	return Config{ToolsEnabled: true}
}
