// OpenAI-backed tools: image generation and web search.
//
// Information Hiding:
// - go-openai client construction hidden
// - Base64 decoding and artifact file naming hidden
// - Structured search response format hidden

package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Defaults for the OpenAI tools.
const (
	DefaultImageDir    = "./images"
	DefaultImageModel  = openai.CreateImageModelGptImage1
	DefaultSearchModel = "gpt-4o-mini-search-preview"
)

// OpenAIToolConfig configures the OpenAI-backed tools.
type OpenAIToolConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (c OpenAIToolConfig) client() *openai.Client {
	cfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	}
	if c.HTTPClient != nil {
		cfg.HTTPClient = c.HTTPClient
	}
	return openai.NewClientWithConfig(cfg)
}

// ImageTool generates an image and saves it as a PNG artifact.
type ImageTool struct {
	client *openai.Client
	dir    string
	model  string
	now    func() time.Time
}

// NewImageTool creates the generate_image tool writing into dir.
func NewImageTool(cfg OpenAIToolConfig, dir string) *ImageTool {
	if dir == "" {
		dir = DefaultImageDir
	}
	return &ImageTool{client: cfg.client(), dir: dir, model: DefaultImageModel, now: time.Now}
}

// Metadata returns the tool metadata.
func (t *ImageTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "generate_image",
		Description: "Generate an image from a text prompt. The image is posted to the room.",
		Schema: ObjectSchema(
			ToolParameter{Name: "prompt", ParamType: "string", Description: "Description of the image", Required: true},
			ToolParameter{Name: "quality", ParamType: "string", Description: "Image quality", Enum: []string{"low", "medium", "high"}},
		),
	}
}

// Execute requests one image and writes it to disk.
func (t *ImageTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var a struct {
		Prompt  string `json:"prompt"`
		Quality string `json:"quality"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if strings.TrimSpace(a.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", ErrInvalidArguments)
	}
	if a.Quality == "" {
		a.Quality = openai.CreateImageQualityMedium
	}

	resp, err := t.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:     a.Prompt,
		Model:      t.model,
		N:          1,
		Quality:    a.Quality,
		Moderation: openai.CreateImageModerationLow,
	})
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return ErrorResult("No image data returned"), nil
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	path := filepath.Join(t.dir, fmt.Sprintf("openai_image_%s.png", t.now().Format("20060102150405.000")))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	return ArtifactResult{Path: path, MIME: "image/png"}, nil
}

// searchSchema constrains web search replies to a result list.
var searchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string"},
		"total_results": {"type": "number"},
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"url": {"type": "string"},
					"snippet": {"type": "string"}
				},
				"required": ["title", "url", "snippet"],
				"additionalProperties": false
			}
		},
		"timestamp": {"type": "string"}
	},
	"required": ["query", "total_results", "results", "timestamp"],
	"additionalProperties": false
}`)

// SearchTool answers web searches with an OpenAI search model.
type SearchTool struct {
	client *openai.Client
	model  string
}

// NewSearchTool creates the web_search tool.
func NewSearchTool(cfg OpenAIToolConfig) *SearchTool {
	return &SearchTool{client: cfg.client(), model: DefaultSearchModel}
}

// Metadata returns the tool metadata.
func (t *SearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "web_search",
		Description: "Search the web and return a list of results with titles, URLs and snippets.",
		Schema: ObjectSchema(
			ToolParameter{Name: "query", ParamType: "string", Description: "Search query", Required: true},
		),
	}
}

// Idempotent implements Idempotent.
func (t *SearchTool) Idempotent() bool { return true }

// Execute runs the search.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidArguments)
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    t.model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: a.Query}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "search_results",
				Schema: searchSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ErrorResult("No search results returned"), nil
	}
	return TextResult{Text: resp.Choices[0].Message.Content}, nil
}
