// Local utility tools: clock and text statistics.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // IANA names resolve in minimal images
	"unicode/utf8"
)

// TimeTool reports the current date and time in a timezone.
type TimeTool struct {
	now func() time.Time
}

// NewTimeTool creates the get_time tool.
func NewTimeTool() *TimeTool {
	return &TimeTool{now: time.Now}
}

// Metadata returns the tool metadata.
func (t *TimeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "get_time",
		Description: "Get the current date and time. Use 'UTC', 'local' or an IANA timezone name.",
		Schema: ObjectSchema(
			ToolParameter{Name: "timezone_name", ParamType: "string", Description: "'UTC', 'local' or an IANA name such as Europe/Berlin"},
		),
	}
}

// Execute returns {"datetime", "timezone"}.
func (t *TimeTool) Execute(_ context.Context, args json.RawMessage) (Result, error) {
	var a struct {
		TimezoneName string `json:"timezone_name"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	name := strings.TrimSpace(a.TimezoneName)
	var loc *time.Location
	switch {
	case name == "" || strings.EqualFold(name, "UTC"):
		loc, name = time.UTC, "UTC"
	case strings.EqualFold(name, "local"):
		loc, name = time.Local, "local"
	default:
		var err error
		if loc, err = time.LoadLocation(name); err != nil {
			return ErrorResult(fmt.Sprintf("Unsupported timezone '%s'. Use 'UTC' or 'local'.", a.TimezoneName)), nil
		}
	}

	return JSONResult(map[string]string{
		"datetime": t.now().In(loc).Format(time.RFC3339Nano),
		"timezone": name,
	})
}

var (
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	sentencePattern = regexp.MustCompile(`[.!?]+`)
)

// TextStatsTool counts words, characters and sentences.
type TextStatsTool struct{}

// NewTextStatsTool creates the text_stats tool.
func NewTextStatsTool() *TextStatsTool {
	return &TextStatsTool{}
}

// Metadata returns the tool metadata.
func (t *TextStatsTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "text_stats",
		Description: "Count the words, characters and sentences in a block of text.",
		Schema: ObjectSchema(
			ToolParameter{Name: "text", ParamType: "string", Description: "Text to analyse", Required: true},
		),
	}
}

// TextStats holds text_stats output.
type TextStats struct {
	Words      int `json:"words"`
	Characters int `json:"characters"`
	Sentences  int `json:"sentences"`
}

// CountText computes TextStats. Blank text counts as zero everywhere.
func CountText(text string) TextStats {
	if strings.TrimSpace(text) == "" {
		return TextStats{}
	}
	return TextStats{
		Words:      len(wordPattern.FindAllStringIndex(text, -1)),
		Characters: utf8.RuneCountInString(text),
		Sentences:  len(sentencePattern.FindAllStringIndex(text, -1)),
	}
}

// Execute returns the counts.
func (t *TextStatsTool) Execute(_ context.Context, args json.RawMessage) (Result, error) {
	var a struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return JSONResult(CountText(a.Text))
}
