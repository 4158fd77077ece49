// Package llm provides shared data models for chat completion backends.
package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of a structured content part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// Part is one element of structured message content.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Content is either plain text or a list of structured parts. Backends
// may return either form; String is the one place the two are folded
// into plain text.
type Content struct {
	text  string
	parts []Part
}

// TextContent returns plain-text content.
func TextContent(s string) Content {
	return Content{text: s}
}

// PartsContent returns structured content.
func PartsContent(parts ...Part) Content {
	return Content{parts: append([]Part{}, parts...)}
}

// IsParts reports whether the content is structured.
func (c Content) IsParts() bool {
	return c.parts != nil
}

// Parts returns a copy of the structured parts, or nil for plain text.
func (c Content) Parts() []Part {
	if c.parts == nil {
		return nil
	}
	return append([]Part(nil), c.parts...)
}

// String normalizes the content to plain text. Text parts are
// concatenated in order; non-text parts are skipped.
func (c Content) String() string {
	if c.parts == nil {
		return c.text
	}
	var b strings.Builder
	for _, p := range c.parts {
		if p.Type == PartText || (p.Type == "" && p.Text != "") {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// MarshalJSON encodes text as a JSON string and parts as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.parts != nil {
		return json.Marshal(c.parts)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a JSON string, an array of parts, or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '[':
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		if parts == nil {
			parts = []Part{}
		}
		*c = Content{parts: parts}
		return nil
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{text: s}
		return nil
	}
}

// Message is one entry of a conversation thread.
type Message struct {
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
}

// Text returns the message content as plain text.
func (m Message) Text() string {
	return m.Content.String()
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	out := m
	if m.Content.parts != nil {
		out.Content = Content{parts: append([]Part{}, m.Content.parts...)}
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = ToolCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: append(json.RawMessage(nil), tc.Arguments...),
			}
		}
	}
	return out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: TextContent(content)}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: TextContent(content)}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(content)}
}

// ToolMessage creates a tool result message answering callID.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: TextContent(content), ToolCallID: callID}
}

// Options are the general-purpose sampling parameters forwarded to a
// backend. Zero values are not sent.
type Options struct {
	Temperature      *float32 `yaml:"temperature" json:"temperature,omitempty"`
	TopP             *float32 `yaml:"top_p" json:"top_p,omitempty"`
	MaxTokens        int      `yaml:"max_tokens" json:"max_tokens,omitempty"`
	PresencePenalty  *float32 `yaml:"presence_penalty" json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32 `yaml:"frequency_penalty" json:"frequency_penalty,omitempty"`
	Stop             []string `yaml:"stop" json:"stop,omitempty"`
	Seed             *int     `yaml:"seed" json:"seed,omitempty"`
}

// IsZero reports whether no option is set.
func (o Options) IsZero() bool {
	return o.Temperature == nil && o.TopP == nil && o.MaxTokens == 0 &&
		o.PresencePenalty == nil && o.FrequencyPenalty == nil &&
		len(o.Stop) == 0 && o.Seed == nil
}

// ToolChoiceAuto lets the model decide whether to call tools.
const ToolChoiceAuto = "auto"

// ChatRequest is one request/response cycle against a model.
type ChatRequest struct {
	Model      string
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice string
	Options    Options
}

// Response represents a response from a completion backend.
type Response struct {
	Message  Message
	Usage    *TokenUsage
	Model    string
	Provider string
}

// Content returns the response text.
func (r *Response) Content() string {
	return r.Message.Text()
}

// ToolCalls returns the tool calls requested by the model.
func (r *Response) ToolCalls() []ToolCall {
	return r.Message.ToolCalls
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}
