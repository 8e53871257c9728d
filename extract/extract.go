// Package extract finds tool invocations embedded in free-form backend replies.
//
// Backends without a reliable structured tool API answer with prose that may
// contain one or more JSON objects shaped like
//
//	{"tool": "web_search", "arguments": {"query": "weather in Paris"}}
//
// Extract locates every balanced top-level object with a brace/string aware
// scanner, keeps the ones that parse into that shape and returns them together
// with the reply text those fragments were cut out of.
package extract

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"parley/model"
)

// Result is the outcome of one extraction.
type Result struct {
	// Calls in the order their spans appear in the text, de-duplicated by
	// name and canonical arguments.
	Calls []model.ToolCall
	// Text is the input with every matched span removed and whitespace
	// normalized.
	Text string
}

var (
	blankLinesRegex = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)

	// Wrappers that may be left empty around a removed call, innermost first.
	scaffolds = []struct{ open, close *regexp.Regexp }{
		{regexp.MustCompile(`\[[\s,]*$`), regexp.MustCompile(`^[\s,]*\]`)},
		{regexp.MustCompile("```[a-zA-Z]*[ \t]*\n?[ \t]*$"), regexp.MustCompile("^\\s*```")},
	}
)

// Extract splits text into tool calls and the remaining prose.
//
// Removing a span can bring two pieces of text together, so extraction is
// repeated on its own output until a pass finds nothing. This makes
// Extract(Extract(x).Text) find no calls. Spans of calls found in a later
// pass refer to the text of that pass.
func Extract(text string) Result {
	var calls []model.ToolCall
	seen := make(map[string]bool)
	remaining := text

	for {
		found, next := extractPass(remaining)
		if len(found) == 0 {
			break
		}
		for _, c := range found {
			key := Key(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			calls = append(calls, c)
		}
		// every pass that finds a call removes at least two bytes
		remaining = tidy(next)
	}

	if len(calls) == 0 {
		return Result{Text: strings.TrimSpace(text)}
	}
	return Result{Calls: calls, Text: remaining}
}

// Key returns the de-duplication key of a call: its name plus its arguments
// in canonical JSON (encoding/json sorts map keys).
func Key(c model.ToolCall) string {
	args := c.Arguments
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return c.Name
	}
	return c.Name + "\x00" + string(data)
}

// extractPass runs a single scan and removes every matched span.
func extractPass(text string) ([]model.ToolCall, string) {
	var calls []model.ToolCall
	for _, span := range Candidates(text) {
		call, ok := parseCall(text[span.Start:span.End])
		if !ok {
			continue
		}
		call.Span = span
		calls = append(calls, call)
	}
	if len(calls) == 0 {
		return nil, text
	}

	// Remove rightmost first so earlier offsets stay valid.
	spans := make([]model.Span, len(calls))
	for i, c := range calls {
		spans[i] = c.Span
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })

	out := text
	for _, s := range spans {
		out = joinAround(stripScaffold(out[:s.Start], out[s.End:]))
	}
	return calls, out
}

// Candidates returns the spans of every balanced top-level {...} object in
// text. Braces inside string literals are ignored. An open brace that is never
// closed is dropped, and the objects nested inside it are still reported. The
// scan is a single pass.
func Candidates(text string) []model.Span {
	var (
		spans    []model.Span
		open     []int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			// quotes in prose outside any object do not start a string
			inString = len(open) > 0
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				continue
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			for len(spans) > 0 && spans[len(spans)-1].Start > start {
				spans = spans[:len(spans)-1]
			}
			spans = append(spans, model.Span{Start: start, End: i + 1})
		}
	}
	return spans
}

// parseCall decodes a candidate and checks the tool invocation shape.
func parseCall(candidate string) (model.ToolCall, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return model.ToolCall{}, false
	}

	nameRaw, ok := raw["tool"]
	if !ok {
		return model.ToolCall{}, false
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil {
		return model.ToolCall{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.ToolCall{}, false
	}

	args := map[string]any{}
	if argsRaw, ok := raw["arguments"]; ok && string(argsRaw) != "null" {
		if err := json.Unmarshal(argsRaw, &args); err != nil {
			// arguments must be an object
			return model.ToolCall{}, false
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	return model.ToolCall{Name: name, Arguments: args}, true
}

// joinAround glues the text on both sides of a removed span, collapsing the
// horizontal whitespace that met at the cut into a single space.
func joinAround(left, right string) string {
	l := strings.TrimRight(left, " \t")
	r := strings.TrimLeft(right, " \t")
	if l == "" || r == "" {
		return l + r
	}
	if strings.HasSuffix(l, "\n") || strings.HasPrefix(r, "\n") {
		return l + r
	}
	return l + " " + r
}

// stripScaffold removes an empty JSON array or code fence that wrapped the
// span cut out between left and right. Brackets and fences elsewhere in the
// prose are left alone.
func stripScaffold(left, right string) (string, string) {
	for _, sc := range scaffolds {
		open := sc.open.FindStringIndex(left)
		if open == nil {
			continue
		}
		closing := sc.close.FindStringIndex(right)
		if closing == nil {
			continue
		}
		left, right = left[:open[0]], right[closing[1]:]
	}
	return left, right
}

// tidy normalizes blank lines.
func tidy(text string) string {
	text = blankLinesRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
