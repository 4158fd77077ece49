// Tool-calling loop.
//
// All tool-assisted completions go through this module.
//
// Information Hiding:
// - Round bookkeeping hidden
// - Argument recovery and result normalization hidden
// - Artifact delivery hidden
// - Transcript cleanup hidden

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	jsonutil "github.com/richinex/parley/internal/json"
	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/storage"
	"github.com/richinex/parley/tools"
)

// DefaultMaxToolRounds caps tool rounds per run.
const DefaultMaxToolRounds = 8

// Loop alternates completions and tool execution until the model
// answers without requesting tools.
type Loop struct {
	gateway   Completer
	executor  tools.Executor
	sink      ArtifactSink
	maxRounds int
	maxItems  int
	logger    *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithMaxToolRounds sets the round cap.
func WithMaxToolRounds(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxRounds = n
		}
	}
}

// WithRetention sets the transcript retention limit.
func WithRetention(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxItems = n
		}
	}
}

// WithArtifactSink delivers ArtifactResults to rooms.
func WithArtifactSink(s ArtifactSink) LoopOption {
	return func(l *Loop) { l.sink = s }
}

// WithLoopLogger sets the logger.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop creates a loop over gateway and executor.
func NewLoop(gateway Completer, executor tools.Executor, opts ...LoopOption) *Loop {
	l := &Loop{
		gateway:   gateway,
		executor:  executor,
		maxRounds: DefaultMaxToolRounds,
		maxItems:  storage.DefaultMaxItems,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HasTools reports whether any tool is available.
func (l *Loop) HasTools() bool {
	return l.executor != nil && len(l.executor.Definitions()) > 0
}

// Run executes the loop. A completion failure aborts the run; tool
// failures are reported to the model as error payloads.
func (l *Loop) Run(ctx context.Context, req Request) (Result, error) {
	var result Result
	messages := llm.CloneMessages(req.Messages)
	defs := l.executor.Definitions()

	chat := func() (*llm.Response, error) {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("loop cancelled: %w", ctx.Err())
		}
		resp, err := l.gateway.Chat(ctx, llm.ChatRequest{
			Model:      req.Model,
			Messages:   messages,
			Tools:      defs,
			ToolChoice: llm.ToolChoiceAuto,
			Options:    req.Options,
		})
		if err != nil {
			return nil, err
		}
		result.LLMCalls++
		if resp.Usage != nil {
			result.Usage.PromptTokens += resp.Usage.PromptTokens
			result.Usage.CompletionTokens += resp.Usage.CompletionTokens
			result.Usage.TotalTokens += resp.Usage.TotalTokens
		}
		return resp, nil
	}

	resp, err := chat()
	if err != nil {
		return result, err
	}

	for len(resp.ToolCalls()) > 0 {
		if result.Rounds >= l.maxRounds {
			result.Capped = true
			l.logger.Warn("tool round limit reached", "model", req.Model, "room", req.Room, "rounds", result.Rounds)
			break
		}

		calls := resp.ToolCalls()
		l.logger.Info("model requested tool calls", "model", req.Model, "count", len(calls))
		messages = append(messages, resp.Message.Clone())
		for _, call := range calls {
			payload := l.execute(ctx, req.Room, call, &result)
			messages = append(messages, llm.ToolMessage(call.ID, payload))
		}
		result.Rounds++

		if resp, err = chat(); err != nil {
			return result, err
		}
	}

	result.Content = strings.TrimSpace(resp.Content())
	messages = append(messages, llm.AssistantMessage(result.Content))
	result.Transcript = storage.Trim(StripToolTraffic(messages), l.maxItems)
	return result, nil
}

// execute runs one call and returns the tool message payload.
func (l *Loop) execute(ctx context.Context, room string, call llm.ToolCall, result *Result) string {
	start := time.Now()

	args, err := jsonutil.Arguments(call.Arguments)
	if err != nil {
		l.logger.Warn("malformed tool arguments, using empty object", "tool", call.Name, "error", err)
	}

	res, err := l.executor.Execute(ctx, call.Name, args)
	payload := tools.Payload(call.Name, res, err)

	result.ToolCalls = append(result.ToolCalls, ToolCall{
		Name:       call.Name,
		InputSize:  len(args),
		OutputSize: len(payload),
		DurationMs: uint64(time.Since(start).Milliseconds()),
		Success:    err == nil,
	})

	if artifact, ok := res.(tools.ArtifactResult); ok && err == nil {
		l.deliver(ctx, room, artifact)
	}
	return payload
}

// deliver sends an artifact to the room. Failures are logged only.
func (l *Loop) deliver(ctx context.Context, room string, artifact tools.ArtifactResult) {
	if l.sink == nil || room == "" {
		return
	}
	if err := l.sink.SendImage(ctx, room, artifact.Path, filepath.Base(artifact.Path)); err != nil {
		l.logger.Warn("failed to deliver artifact", "room", room, "path", artifact.Path, "error", err)
	}
}

// StripToolTraffic drops tool messages and assistant messages that
// carry tool calls.
func StripToolTraffic(msgs []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llm.RoleTool || (m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0) {
			continue
		}
		out = append(out, m)
	}
	return out
}
