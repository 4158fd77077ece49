// Package agent drives conversations: the tool-calling loop and the
// engine that owns model selection and per-thread turns.
//
// Contains the request and result types shared by both.
package agent

import (
	"context"
	"errors"

	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/model"
)

var (
	// ErrUnknownModel is returned when no provider lists the model.
	ErrUnknownModel = errors.New("unknown model")

	// ErrLocalModel is returned when a participant selects a local model
	// that is not the current global model.
	ErrLocalModel = errors.New("local model must match the global model")
)

// Completer issues one completion call.
type Completer interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.Response, error)
}

// Gateway is a Completer that also exposes its routing table.
type Gateway interface {
	Completer
	Routes() llm.RoutingTable
}

// ArtifactSink receives files produced by tools, such as generated
// images, for delivery to a room.
type ArtifactSink interface {
	SendImage(ctx context.Context, room, path, filename string) error
}

// ToolCall is an alias for model.ToolCall for tool call metrics.
type ToolCall = model.ToolCall

// Request is one run of the tool-calling loop.
type Request struct {
	Room     string
	Model    string
	Messages []llm.Message
	Options  llm.Options
}

// Result is the outcome of a loop run.
type Result struct {
	// Content is the final response text, possibly empty.
	Content string

	// Transcript is the input plus the final assistant message, with
	// tool traffic stripped and retention applied.
	Transcript []llm.Message

	// Rounds counts tool rounds executed.
	Rounds int

	// Capped reports that the loop stopped at the round limit while
	// the model still requested tools.
	Capped bool

	ToolCalls []ToolCall
	Usage     llm.TokenUsage
	LLMCalls  int
}
