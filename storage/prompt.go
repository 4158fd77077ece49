package storage

import "sync/atomic"

// PromptBuilder derives system prompts from a persona: prefix + persona
// + suffix, followed by the extra suffix unless verbose mode is on.
type PromptBuilder struct {
	Prefix         string
	Suffix         string
	Extra          string
	DefaultPersona string

	verbose atomic.Bool
}

// NewPromptBuilder creates a builder. Verbose mode starts off.
func NewPromptBuilder(prefix, suffix, extra, defaultPersona string) *PromptBuilder {
	return &PromptBuilder{
		Prefix:         prefix,
		Suffix:         suffix,
		Extra:          extra,
		DefaultPersona: defaultPersona,
	}
}

// SetVerbose toggles verbose mode. Verbose prompts omit the extra suffix,
// which usually asks for brevity. Existing threads keep their prompt.
func (p *PromptBuilder) SetVerbose(v bool) {
	p.verbose.Store(v)
}

// Verbose reports whether verbose mode is on.
func (p *PromptBuilder) Verbose() bool {
	return p.verbose.Load()
}

// Build returns the system prompt for persona; an empty persona uses
// the default.
func (p *PromptBuilder) Build(persona string) string {
	if persona == "" {
		persona = p.DefaultPersona
	}
	prompt := p.Prefix + persona + p.Suffix
	if !p.verbose.Load() {
		prompt += p.Extra
	}
	return prompt
}

// Default returns the default persona's system prompt.
func (p *PromptBuilder) Default() string {
	return p.Build("")
}
