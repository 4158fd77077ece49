// Package llm provides chat completion backends and model routing.
//
// Provider is the abstract interface for one backend family.
// Each implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific option handling

package llm

import (
	"context"
	"errors"
)

var (
	// ErrCompletion wraps every failed backend call.
	ErrCompletion = errors.New("completion failed")

	// ErrUnresolvedModel is returned when no provider claims a model and
	// no fallback provider is configured.
	ErrUnresolvedModel = errors.New("model not claimed by any provider")
)

// Provider issues chat completions against one endpoint/credential pair.
// The model is chosen per request.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Chat sends one chat completion request. When req.Tools is non-empty
	// the model may answer with tool calls in Response.Message.ToolCalls.
	Chat(ctx context.Context, req ChatRequest) (*Response, error)
}
