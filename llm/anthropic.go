// Anthropic provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - System prompt extraction and tool result grouping

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	name   string
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider. An empty baseURL
// uses the SDK default.
func NewAnthropicProvider(name, baseURL, apiKey string, httpClient *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicProvider{
		name:   name,
		client: anthropic.NewClient(opts...),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return p.name
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(req.Messages)

	maxTokens := int64(anthropicDefaultMaxTokens)
	if req.Options.MaxTokens > 0 {
		maxTokens = int64(req.Options.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  anthropicMessages,
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Options.Temperature))
	}
	if req.Options.TopP != nil {
		params.TopP = anthropic.Float(float64(*req.Options.TopP))
	}
	if len(req.Options.Stop) > 0 {
		params.StopSequences = req.Options.Stop
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertToAnthropicTools(req.Tools)
		if req.ToolChoice == ToolChoiceAuto {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(variant.Input)
			toolCalls = append(toolCalls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: inputJSON,
			})
		}
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	return &Response{
		Message: Message{Role: RoleAssistant, Content: TextContent(content), ToolCalls: toolCalls},
		Usage:   usage,
	}, nil
}

// convertToAnthropicMessages extracts the system prompt and converts the
// rest. Consecutive tool results are grouped into one user turn.
func convertToAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string
	lastWasToolResult := false

	for _, msg := range messages {
		isToolResult := msg.Role == RoleTool
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Text()
		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Text()),
			))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Text()),
				))
				break
			}
			content := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
			if text := msg.Text(); text != "" {
				content.Content = append(content.Content, anthropic.NewTextBlock(text))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal(tc.Arguments, &input)
				if input == nil {
					input = map[string]any{}
				}
				content.Content = append(content.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			anthropicMessages = append(anthropicMessages, content)
		case RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), false)
			if lastWasToolResult {
				last := &anthropicMessages[len(anthropicMessages)-1]
				last.Content = append(last.Content, block)
			} else {
				anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(block))
			}
		}
		lastWasToolResult = isToolResult
	}

	return anthropicMessages, systemPrompt
}

// convertToAnthropicTools converts tool definitions to Anthropic format.
func convertToAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]any)
		if properties == nil {
			properties = map[string]any{}
		}

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   schemaRequired(t.Parameters),
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

// schemaRequired reads "required" from a decoded JSON schema, which is
// []any after json.Unmarshal and []string when built in Go.
func schemaRequired(params map[string]any) []string {
	switch req := params["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
