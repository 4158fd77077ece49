// Google Gemini provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config
// - Tool call identifiers (Gemini may omit them)

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client

	once    sync.Once
	client  *genai.Client
	initErr error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider. The SDK client is
// created on first use; an initialization error is returned from Chat.
func NewGeminiProvider(name, baseURL, apiKey string, httpClient *http.Client) *GeminiProvider {
	return &GeminiProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return p.name
}

func (p *GeminiProvider) init(ctx context.Context) error {
	p.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     p.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: p.httpClient,
		}
		if p.baseURL != "" {
			cfg.HTTPOptions.BaseURL = p.baseURL
		}
		client, err := genai.NewClient(ctx, cfg)
		if err != nil {
			p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
			return
		}
		p.client = client
	})
	return p.initErr
}

// Chat sends a chat completion request.
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*Response, error) {
	if err := p.init(ctx); err != nil {
		return nil, err
	}

	contents, systemInstruction := convertToGeminiMessages(req.Messages)

	config := &genai.GenerateContentConfig{
		Tools: convertToGeminiTools(req.Tools),
	}
	applyGeminiOptions(config, req.Options)
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	response, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	var toolCalls []ToolCall
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		for _, part := range response.Candidates[0].Content.Parts {
			if part.Text != "" && !part.Thought {
				content += part.Text
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				toolCalls = append(toolCalls, ToolCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: argsJSON,
				})
			}
		}
	}

	var usage *TokenUsage
	if response.UsageMetadata != nil {
		usage = &TokenUsage{
			PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
			CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
		}
	}

	return &Response{
		Message: Message{Role: RoleAssistant, Content: TextContent(content), ToolCalls: toolCalls},
		Usage:   usage,
	}, nil
}

func applyGeminiOptions(config *genai.GenerateContentConfig, opts Options) {
	config.Temperature = opts.Temperature
	config.TopP = opts.TopP
	config.PresencePenalty = opts.PresencePenalty
	config.FrequencyPenalty = opts.FrequencyPenalty
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if len(opts.Stop) > 0 {
		config.StopSequences = opts.Stop
	}
	if opts.Seed != nil {
		config.Seed = genai.Ptr(int32(*opts.Seed))
	}
}

// convertToGeminiMessages extracts the system instruction and converts
// the rest. Tool results are answered by function name, which Gemini
// requires, so names are recovered from the preceding tool calls.
func convertToGeminiMessages(messages []Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemInstruction string
	callNames := make(map[string]string)

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemInstruction = msg.Text()
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Text(), genai.RoleUser))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				contents = append(contents, genai.NewContentFromText(msg.Text(), genai.RoleModel))
				break
			}
			content := &genai.Content{Role: genai.RoleModel}
			if text := msg.Text(); text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: text})
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Name
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: args,
					},
				})
			}
			contents = append(contents, content)
		case RoleTool:
			var result map[string]any
			_ = json.Unmarshal([]byte(msg.Text()), &result)
			if result == nil {
				result = map[string]any{"result": msg.Text()}
			}
			name := callNames[msg.ToolCallID]
			if name == "" {
				name = msg.ToolCallID
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser, // Gemini expects tool results as user
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     name,
						Response: result,
					},
				}},
			})
		}
	}

	return contents, systemInstruction
}

// convertToGeminiTools converts tool definitions to Gemini format.
func convertToGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	var declarations []*genai.FunctionDeclaration
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertToGeminiSchema(t.Parameters),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertToGeminiSchema recursively converts a JSON schema to Gemini
// format. Arrays always get an items schema, which Gemini requires.
func convertToGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if t, ok := params["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	}
	if d, ok := params["description"].(string); ok {
		schema.Description = d
	}
	if enum, ok := params["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	schema.Required = schemaRequired(params)

	switch schema.Type {
	case genai.TypeArray:
		if items, ok := params["items"].(map[string]any); ok {
			schema.Items = convertToGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	case genai.TypeObject:
		if props, ok := params["properties"].(map[string]any); ok {
			schema.Properties = make(map[string]*genai.Schema, len(props))
			for name, prop := range props {
				if propMap, ok := prop.(map[string]any); ok {
					schema.Properties[name] = convertToGeminiSchema(propMap)
				}
			}
		}
	}

	return schema
}

// mapToGeminiType maps JSON schema type to Gemini type.
func mapToGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
