// Package tools provides the tools the model may call mid-conversation.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Tool parameters and schemas hidden in implementations
// - Registry implementation details hidden from consumers
// - Result normalization to JSON payloads internalized
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/richinex/parley/llm"
)

var (
	// ErrUnknownTool is returned when no tool has the requested name.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string   `json:"name"`
	ParamType   string   `json:"param_type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolMetadata describes what a tool does and how to call it.
type ToolMetadata struct {
	Name        string
	Description string
	Schema      map[string]any // JSON Schema for the argument object
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Definition converts the metadata to the wire tool definition.
func (m ToolMetadata) Definition() llm.ToolDefinition {
	schema := m.Schema
	if schema == nil {
		schema = ObjectSchema()
	}
	return llm.ToolDefinition{Name: m.Name, Description: m.Description, Parameters: schema}
}

// ObjectSchema builds an object JSON Schema from parameter descriptions.
func ObjectSchema(params ...ToolParameter) map[string]any {
	properties := make(map[string]any, len(params))
	required := []string{}
	for _, p := range params {
		prop := map[string]any{"type": p.ParamType}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Result is the outcome of a tool execution: a TextResult or an
// ArtifactResult.
type Result interface {
	// Payload renders the result as the text sent back to the model.
	Payload() string
	isResult()
}

// TextResult carries a textual result. JSON text is passed through;
// anything else is wrapped as {"result": text}.
type TextResult struct {
	Text string
}

// Payload implements Result.
func (r TextResult) Payload() string {
	return NormalizeText(r.Text)
}

func (TextResult) isResult() {}

// ArtifactResult reports a file produced by the tool, such as a
// generated image, that should be delivered to the room out of band.
type ArtifactResult struct {
	Path string
	MIME string
}

// Payload implements Result.
func (r ArtifactResult) Payload() string {
	return mustJSON(map[string]string{"result": r.Path})
}

func (ArtifactResult) isResult() {}

// JSONResult marshals v into a TextResult.
func JSONResult(v any) (TextResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return TextResult{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return TextResult{Text: string(data)}, nil
}

// ErrorResult reports a tool-level failure the model should see, such as
// an unsupported timezone, without treating it as an execution error.
func ErrorResult(msg string) TextResult {
	return TextResult{Text: mustJSON(map[string]string{"error": msg})}
}

// Tool is the interface that all tools must implement.
//
// Information Hiding: Tool implementations hide their internal execution logic,
// data structures, and error handling strategies behind this interface.
type Tool interface {
	// Metadata returns tool metadata (name, description, argument schema).
	Metadata() ToolMetadata

	// Execute runs the tool with validated arguments.
	Execute(ctx context.Context, args json.RawMessage) (Result, error)
}

// Idempotent is implemented by tools that are safe to retry after a
// transient failure.
type Idempotent interface {
	Idempotent() bool
}

// Executor executes tools by name. The tool-calling loop depends only on
// this contract.
type Executor interface {
	// Execute runs the named tool.
	Execute(ctx context.Context, name string, args json.RawMessage) (Result, error)

	// Definitions returns the schema of every available tool.
	Definitions() []llm.ToolDefinition
}

// NormalizeText passes JSON text through and wraps anything else as
// {"result": text}.
func NormalizeText(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}
	return mustJSON(map[string]string{"result": s})
}

// Payload renders an execution outcome as the text of a tool message.
func Payload(name string, res Result, err error) string {
	switch {
	case err == nil && res != nil:
		return res.Payload()
	case err == nil:
		return "null"
	case errors.Is(err, ErrUnknownTool):
		return "Unknown tool: " + name
	case errors.Is(err, ErrInvalidArguments):
		return mustJSON(map[string]string{"error": fmt.Sprintf("Invalid arguments for %s: %v", name, err)})
	default:
		return mustJSON(map[string]string{"error": fmt.Sprintf("Tool execution error for %s: %v", name, err)})
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"error":"unencodable result"}`
	}
	return string(data)
}
