// Tool management and registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Schema compilation and argument validation hidden
// - Override precedence for external tools hidden

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/parley/llm"
	"github.com/xeipuuv/gojsonschema"
)

// maxLoggedArgs bounds how much of a tool's arguments is logged.
const maxLoggedArgs = 800

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema // nil when the schema failed to compile
}

// Registry manages available tools and executes them by name.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	policy RetryPolicy
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRetryPolicy sets the execution policy.
func WithRetryPolicy(p RetryPolicy) RegistryOption {
	return func(r *Registry) { r.policy = p }
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a new empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]entry),
		policy: DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	name := tool.Metadata().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	e := r.compile(tool)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = e
	return nil
}

// Override registers tool, replacing any tool of the same name. It
// reports whether a tool was replaced.
func (r *Registry) Override(tool Tool) bool {
	name := tool.Metadata().Name
	e := r.compile(tool)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.tools[name]
	r.tools[name] = e
	return exists
}

func (r *Registry) compile(tool Tool) entry {
	meta := tool.Metadata()
	e := entry{tool: tool}
	if meta.Schema == nil {
		return e
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(meta.Schema))
	if err != nil {
		r.logger.Warn("tool schema does not compile, arguments will not be validated",
			"tool", meta.Name, "error", err)
		return e
	}
	e.schema = schema
	return e
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.tools[name]
	return e.tool, exists
}

// Has checks if a tool exists in the registry.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered tools, sorted by name.
func (r *Registry) List() []ToolMetadata {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()
	metadata := make([]ToolMetadata, 0, len(names))
	for _, name := range names {
		if e, ok := r.tools[name]; ok {
			metadata = append(metadata, e.tool.Metadata())
		}
	}
	return metadata
}

// Definitions implements Executor.
func (r *Registry) Definitions() []llm.ToolDefinition {
	list := r.List()
	defs := make([]llm.ToolDefinition, 0, len(list))
	for _, meta := range list {
		defs = append(defs, meta.Definition())
	}
	return defs
}

// Description returns a one-line-per-tool listing for chat output.
func (r *Registry) Description() string {
	var lines []string
	for _, meta := range r.List() {
		lines = append(lines, meta.String())
	}
	return strings.Join(lines, "\n")
}

// Execute implements Executor. Arguments are validated against the
// tool's schema before it runs.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	r.logger.Info("executing tool", "tool", name, "args", truncate(string(args), maxLoggedArgs))

	if err := validate(e.schema, args); err != nil {
		return nil, err
	}

	result, err := r.policy.run(ctx, e.tool, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return nil, err
	}
	return result, nil
}

func validate(schema *gojsonschema.Schema, args json.RawMessage) error {
	if !json.Valid(args) {
		return fmt.Errorf("%w: arguments are not valid JSON", ErrInvalidArguments)
	}
	if schema == nil {
		return nil
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, desc := range res.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(problems, "; "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Verify Registry implements Executor
var _ Executor = (*Registry)(nil)
