package agent

import (
	"regexp"
	"strings"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// SplitReasoning separates <think> blocks from the answer. An unclosed
// block runs to the end of the text, and a stray closing tag marks
// everything before it as reasoning, as some models omit the opening tag.
func SplitReasoning(text string) (answer, reasoning string) {
	var parts []string

	if i := strings.Index(text, thinkClose); i >= 0 && !strings.Contains(text[:i], thinkOpen) {
		parts = append(parts, strings.TrimSpace(text[:i]))
		text = text[i+len(thinkClose):]
	}

	for _, m := range thinkBlock.FindAllStringSubmatch(text, -1) {
		parts = append(parts, strings.TrimSpace(m[1]))
	}
	text = thinkBlock.ReplaceAllString(text, "")

	if i := strings.Index(text, thinkOpen); i >= 0 {
		parts = append(parts, strings.TrimSpace(text[i+len(thinkOpen):]))
		text = text[:i]
	}

	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(text), strings.Join(kept, "\n\n")
}
