package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImageToolWritesArtifact(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "images")
	tool := NewImageTool(OpenAIToolConfig{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()}, dir)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt":"a red fox"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	artifact, ok := res.(ArtifactResult)
	if !ok {
		t.Fatalf("expected ArtifactResult, got %T", res)
	}
	if artifact.MIME != "image/png" || !strings.HasPrefix(filepath.Base(artifact.Path), "openai_image_") {
		t.Errorf("unexpected artifact %+v", artifact)
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("artifact bytes differ")
	}

	if req["model"] != "gpt-image-1" || req["quality"] != "medium" || req["moderation"] != "low" {
		t.Errorf("unexpected request %v", req)
	}
}

func TestImageToolNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":[]}`))
	}))
	defer srv.Close()

	tool := NewImageTool(OpenAIToolConfig{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()}, t.TempDir())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"prompt":"nothing"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Payload(); got != `{"error":"No image data returned"}` {
		t.Errorf("payload = %s", got)
	}
}

func TestSearchToolUsesStructuredOutput(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"query":"go","total_results":1,"results":[],"timestamp":"now"}`,
				},
			}},
		})
	}))
	defer srv.Close()

	tool := NewSearchTool(OpenAIToolConfig{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"go"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.HasPrefix(res.Payload(), `{"query":"go"`) {
		t.Errorf("payload = %s", res.Payload())
	}

	if req["model"] != DefaultSearchModel {
		t.Errorf("model = %v", req["model"])
	}
	format, _ := req["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("response_format = %v", req["response_format"])
	}
}
