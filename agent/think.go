package agent

import (
	"regexp"
	"strings"
)

var (
	thinkPattern    = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	thoughtPattern  = regexp.MustCompile(`(?s)<\|begin_of_thought\|>(.*?)<\|end_of_thought\|>`)
	solutionPattern = regexp.MustCompile(`(?s)<\|begin_of_solution\|>(.*?)<\|end_of_solution\|>`)
)

// StripThinking removes reasoning markup from a reply. It returns the
// visible answer and the removed reasoning, both trimmed.
func StripThinking(text string) (answer, thinking string) {
	var parts []string
	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if s := strings.TrimSpace(m[1]); s != "" {
				parts = append(parts, s)
			}
		}
		text = re.ReplaceAllString(text, "")
	}
	collect(thinkPattern)
	collect(thoughtPattern)

	if m := solutionPattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	return strings.TrimSpace(text), strings.Join(parts, "\n")
}
