package render

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapText wraps one paragraph to width display cells. Words wider than
// the line are split.
func wrapText(text string, width int) []string {
	if width <= 0 || runewidth.StringWidth(text) <= width {
		return []string{text}
	}

	var lines []string
	var current string
	for _, word := range strings.Fields(text) {
		wordWidth := runewidth.StringWidth(word)

		if wordWidth > width {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			for wordWidth > width {
				chunk := runewidth.Truncate(word, width, "")
				lines = append(lines, chunk)
				word = word[len(chunk):]
				wordWidth = runewidth.StringWidth(word)
			}
			current = word
			continue
		}

		switch {
		case current == "":
			current = word
		case runewidth.StringWidth(current)+1+wordWidth <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// indent wraps every line of text and prefixes it.
func indent(text, prefix string, width int) string {
	avail := width - runewidth.StringWidth(prefix)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			out = append(out, strings.TrimRight(prefix, " "))
			continue
		}
		for _, w := range wrapText(line, avail) {
			out = append(out, prefix+w)
		}
	}
	return strings.Join(out, "\n")
}

// truncate shortens s to width display cells.
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
