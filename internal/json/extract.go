// Package json recovers JSON objects from model output.
//
// Models sometimes send tool arguments that are not a bare JSON object:
// double-encoded strings, markdown fences, or an object wrapped in prose.
// This package extracts the object so the call can still run.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ErrNoObject is returned when no JSON object can be recovered.
var ErrNoObject = fmt.Errorf("no JSON object found")

// extractObject finds and returns the JSON object in s.
// It handles these patterns, in order:
// 1. A bare JSON object
// 2. A JSON string whose value is a JSON object (double encoding)
// 3. An object wrapped in markdown code fences
// 4. An object embedded in text - first '{' to last '}'
//
// Limitations:
// - Uses simple brace matching, not full JSON parsing
// - May fail if braces appear in strings or are unbalanced
func extractObject(s string) (string, error) {
	s = strings.TrimSpace(s)
	if isObject(s) {
		return s, nil
	}

	var inner string
	if err := json.Unmarshal([]byte(s), &inner); err == nil {
		inner = strings.TrimSpace(inner)
		if isObject(inner) {
			return inner, nil
		}
		s = inner
	}

	s = stripMarkdownCodeBlocks(s)
	if isObject(s) {
		return s, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		candidate := s[start : end+1]
		if isObject(candidate) {
			return candidate, nil
		}
	}

	// Create a preview for the error message
	preview := s
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("%w in %q", ErrNoObject, preview)
}

func isObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var obj map[string]any
	return json.Unmarshal([]byte(s), &obj) == nil
}

// stripMarkdownCodeBlocks removes markdown code block markers.
// Handles patterns like ```json\n...\n``` or ```\n...\n```
func stripMarkdownCodeBlocks(s string) string {
	trimmed := strings.TrimSpace(s)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
	} else {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}

// ExtractObject returns the JSON object contained in s.
func ExtractObject(s string) (json.RawMessage, error) {
	obj, err := extractObject(s)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(obj), nil
}

// Arguments normalizes raw tool-call arguments. Empty input is an empty
// object. Unrecoverable input returns an empty object together with
// the extraction error so the caller can log it and still run the tool.
func Arguments(raw []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}"), nil
	}
	obj, err := extractObject(string(raw))
	if err != nil {
		return json.RawMessage("{}"), err
	}
	return json.RawMessage(obj), nil
}
