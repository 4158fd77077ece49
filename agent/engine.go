// Conversation engine.
//
// Owns the bot-wide state (global model, per-user overrides, tools
// toggle) and runs whole turns against a thread under its turn lock.
//
// Information Hiding:
// - Turn locking hidden
// - Model selection rules hidden
// - Choice between plain completion and the tool loop hidden
// - Reply cleanup before storage hidden

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/model"
	"github.com/richinex/parley/storage"
)

// IntroducePrompt is the user message sent after a prompt change.
const IntroducePrompt = "introduce yourself"

// Engine runs conversation turns. Safe for concurrent use.
type Engine struct {
	gateway Gateway
	history storage.HistoryStore
	prompts *storage.PromptBuilder
	loop    *Loop
	options llm.Options
	logger  *slog.Logger

	defaultModel string

	mu           sync.RWMutex
	model        string
	overrides    map[model.ThreadKey]string
	toolsEnabled bool
}

func newEngine(cfg Config, gateway Gateway, history storage.HistoryStore, prompts *storage.PromptBuilder, loop *Loop, logger *slog.Logger) *Engine {
	return &Engine{
		gateway:      gateway,
		history:      history,
		prompts:      prompts,
		loop:         loop,
		options:      cfg.Options,
		logger:       logger,
		defaultModel: cfg.DefaultModel,
		model:        cfg.DefaultModel,
		overrides:    make(map[model.ThreadKey]string),
		toolsEnabled: cfg.ToolsEnabled && loop != nil && loop.HasTools(),
	}
}

// Ask appends text (when non-empty) to the thread as a user message,
// completes with the thread's effective model and stores the reply.
// Tools are offered when enabled. On error the thread keeps the user
// message and no reply is stored.
func (e *Engine) Ask(ctx context.Context, key model.ThreadKey, text string) (string, error) {
	unlock := e.history.Lock(key)
	defer unlock()

	e.history.Ensure(key)
	if text != "" {
		e.history.Append(key, llm.UserMessage(text))
	}
	return e.respond(ctx, key, e.ToolsEnabled())
}

// Introduce replaces the thread's system prompt, built from custom when
// non-empty or else from persona, and asks the model to introduce itself.
func (e *Engine) Introduce(ctx context.Context, key model.ThreadKey, persona, custom string) (string, error) {
	unlock := e.history.Lock(key)
	defer unlock()

	e.history.InitPrompt(key, persona, custom)
	e.history.Append(key, llm.UserMessage(IntroducePrompt))
	return e.respond(ctx, key, false)
}

// respond completes the thread and commits the cleaned reply. Callers
// hold the turn lock.
func (e *Engine) respond(ctx context.Context, key model.ThreadKey, useTools bool) (string, error) {
	modelName := e.UserModel(key)
	messages := e.history.Get(key)

	var (
		content    string
		transcript []llm.Message
	)
	if useTools && e.loop != nil {
		res, err := e.loop.Run(ctx, Request{
			Room:     key.Room,
			Model:    modelName,
			Messages: messages,
			Options:  e.options,
		})
		if err != nil {
			return "", fmt.Errorf("tool loop: %w", err)
		}
		content, transcript = res.Content, res.Transcript
		e.logger.Info("turn complete",
			"room", key.Room, "user", key.User, "model", modelName,
			"rounds", res.Rounds, "tool_calls", len(res.ToolCalls), "capped", res.Capped,
			"tokens", res.Usage.TotalTokens)
	} else {
		resp, err := e.gateway.Chat(ctx, llm.ChatRequest{
			Model:    modelName,
			Messages: messages,
			Options:  e.options,
		})
		if err != nil {
			return "", err
		}
		content = resp.Content()
		e.logger.Info("turn complete", "room", key.Room, "user", key.User, "model", modelName)
	}

	answer, thinking := StripThinking(content)
	if thinking != "" {
		e.logger.Debug("model reasoning", "room", key.Room, "user", key.User, "thinking", thinking)
	}

	if transcript != nil {
		transcript[len(transcript)-1] = llm.AssistantMessage(answer)
		e.history.Replace(key, transcript)
	} else {
		e.history.Append(key, llm.AssistantMessage(answer))
	}
	return answer, nil
}

// Reset clears one thread. A stock reset leaves it without a system prompt.
func (e *Engine) Reset(key model.ThreadKey, stock bool) {
	unlock := e.history.Lock(key)
	defer unlock()
	e.history.Reset(key, stock)
}

// ClearAll drops every thread and restores the default model. Per-user
// overrides are dropped as well.
func (e *Engine) ClearAll() {
	e.history.ClearAll()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = e.defaultModel
	clear(e.overrides)
}

// Users lists participants holding a thread in room.
func (e *Engine) Users(room string) []string {
	return e.history.Users(room)
}

// Models lists every routable model, sorted.
func (e *Engine) Models() []string {
	return e.gateway.Routes().Models()
}

// Model returns the global model.
func (e *Engine) Model() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// DefaultModel returns the configured default model.
func (e *Engine) DefaultModel() string {
	return e.defaultModel
}

// SetModel changes the global model. Unknown models are rejected.
func (e *Engine) SetModel(name string) error {
	if !slices.Contains(e.Models(), name) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = name
	return nil
}

// ResetModel restores the default global model.
func (e *Engine) ResetModel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = e.defaultModel
}

// UserModel returns the thread's override, or the global model.
func (e *Engine) UserModel(key model.ThreadKey) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if m, ok := e.overrides[key]; ok {
		return m
	}
	return e.model
}

// SetUserModel stores a per-thread override. A model served by a local
// provider is accepted only when it is the current global model.
func (e *Engine) SetUserModel(key model.ThreadKey, name string) error {
	routes := e.gateway.Routes()

	e.mu.Lock()
	defer e.mu.Unlock()
	if routes.IsLocal(name) && name != e.model {
		return fmt.Errorf("%w: %s", ErrLocalModel, name)
	}
	if !slices.Contains(routes.Models(), name) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	e.overrides[key] = name
	return nil
}

// ResetUserModel drops the thread's override.
func (e *Engine) ResetUserModel(key model.ThreadKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.overrides, key)
}

// PruneModels reconciles model selections with the current routing
// table. A global model no longer claimed by any provider falls back to
// the default, and overrides naming such models are dropped.
func (e *Engine) PruneModels() (reset bool, dropped int) {
	routes := e.gateway.Routes()

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := routes.Owner(e.model); !ok && e.model != e.defaultModel {
		e.logger.Warn("global model no longer routed, restoring default",
			"model", e.model, "default", e.defaultModel)
		e.model = e.defaultModel
		reset = true
	}
	for key, name := range e.overrides {
		if _, ok := routes.Owner(name); !ok {
			e.logger.Warn("dropping model override no longer routed",
				"room", key.Room, "user", key.User, "model", name)
			delete(e.overrides, key)
			dropped++
		}
	}
	return reset, dropped
}

// ToolsEnabled reports whether tools are offered to the model.
func (e *Engine) ToolsEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.toolsEnabled
}

// SetToolsEnabled toggles tools. Enabling has no effect when no tool is
// registered; the resulting state is returned.
func (e *Engine) SetToolsEnabled(enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolsEnabled = enabled && e.loop != nil && e.loop.HasTools()
	return e.toolsEnabled
}

// Verbose reports whether verbose prompts are on.
func (e *Engine) Verbose() bool {
	return e.prompts.Verbose()
}

// SetVerbose toggles verbose prompts for threads seeded afterwards.
func (e *Engine) SetVerbose(v bool) {
	e.prompts.SetVerbose(v)
}
