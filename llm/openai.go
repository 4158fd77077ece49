// OpenAI-compatible provider implementation using go-openai library.
//
// Information Hiding:
// - Endpoint override for OpenAI-compatible backends (xAI, Mistral,
//   DeepSeek, Qwen, Ollama, LM Studio, ...)
// - Request/response format for the Chat Completions API
// - Text-or-parts content conversion

package llm

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for any endpoint that
// speaks the OpenAI chat completions contract.
type OpenAIProvider struct {
	name   string
	client *openai.Client
}

// NewOpenAIProvider creates a provider against baseURL. An empty baseURL
// uses the OpenAI default.
func NewOpenAIProvider(name, baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return &OpenAIProvider{
		name:   name,
		client: openai.NewClientWithConfig(config),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	oaiReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertToOpenAIMessages(req.Messages),
	}
	applyOpenAIOptions(&oaiReq, req.Options)

	if len(req.Tools) > 0 {
		oaiReq.Tools = convertToOpenAITools(req.Tools)
		if req.ToolChoice != "" {
			oaiReq.ToolChoice = req.ToolChoice
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return &Response{
		Message: convertFromOpenAIMessage(resp.Choices[0].Message),
		Usage: &TokenUsage{
			PromptTokens:     uint32(resp.Usage.PromptTokens),
			CompletionTokens: uint32(resp.Usage.CompletionTokens),
			TotalTokens:      uint32(resp.Usage.TotalTokens),
		},
	}, nil
}

func applyOpenAIOptions(req *openai.ChatCompletionRequest, opts Options) {
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.PresencePenalty != nil {
		req.PresencePenalty = *opts.PresencePenalty
	}
	if opts.FrequencyPenalty != nil {
		req.FrequencyPenalty = *opts.FrequencyPenalty
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}
	if opts.Seed != nil {
		seed := *opts.Seed
		req.Seed = &seed
	}
}

// convertToOpenAIMessages handles text, structured parts, tool calls and
// tool responses.
func convertToOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			ToolCallID: msg.ToolCallID,
		}

		if msg.Content.IsParts() {
			for _, part := range msg.Content.Parts() {
				switch part.Type {
				case PartImageURL:
					oaiMsg.MultiContent = append(oaiMsg.MultiContent, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL},
					})
				default:
					oaiMsg.MultiContent = append(oaiMsg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				}
			}
		} else {
			oaiMsg.Content = msg.Content.String()
		}

		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}

		result[i] = oaiMsg
	}
	return result
}

// convertFromOpenAIMessage maps a response message back, keeping
// structured content structured.
func convertFromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	msg := Message{Role: Role(m.Role)}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}

	if len(m.MultiContent) > 0 {
		parts := make([]Part, 0, len(m.MultiContent))
		for _, p := range m.MultiContent {
			part := Part{Type: PartType(p.Type), Text: p.Text}
			if p.ImageURL != nil {
				part.ImageURL = p.ImageURL.URL
			}
			parts = append(parts, part)
		}
		msg.Content = PartsContent(parts...)
	} else {
		msg.Content = TextContent(m.Content)
	}

	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	return msg
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
