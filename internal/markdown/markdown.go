// Package markdown renders chat replies to HTML.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// converter mirrors what chat clients expect: tables, strikethrough,
// autolinks and footnotes, with single newlines kept as line breaks.
var converter = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Footnote),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// ToHTML renders md to an HTML fragment. Raw HTML in the input is
// escaped rather than passed through.
func ToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := converter.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
