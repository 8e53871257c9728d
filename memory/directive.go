package memory

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	directiveRegex  = regexp.MustCompile(`(?s)<memory>(.*?)</memory>`)
	extraBlankLines = regexp.MustCompile(`\n{3,}`)
)

// Directive is an explicit memory request embedded in a reply:
//
//	<memory>{"content": "...", "type": "fact", "importance": "high", "tags": ["x"], "expiration_hours": 6}</memory>
type Directive struct {
	Content         string   `json:"content"`
	Type            string   `json:"type,omitempty"`
	Importance      string   `json:"importance,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	ExpirationHours float64  `json:"expiration_hours,omitempty"`
}

// ParseDirectives removes every <memory> block from text and returns the
// cleaned text together with the blocks that decoded. Malformed blocks are
// removed but not returned.
func ParseDirectives(text string) (string, []Directive) {
	if !strings.Contains(text, "<memory>") {
		return text, nil
	}

	var directives []Directive
	for _, m := range directiveRegex.FindAllStringSubmatch(text, -1) {
		var d Directive
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &d); err != nil {
			continue
		}
		d.Content = strings.TrimSpace(d.Content)
		if d.Content == "" {
			continue
		}
		directives = append(directives, d)
	}

	cleaned := directiveRegex.ReplaceAllString(text, "")
	cleaned = extraBlankLines.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned), directives
}

// ErrNotStored is returned for directives whose importance is none.
var ErrNotStored = errors.New("memory directive has importance none")

// Memory converts the directive into a memory created at now. Missing
// importance defaults to normal; a positive expiration makes it volatile.
func (d Directive) Memory(now time.Time) (Memory, error) {
	importance := ImportanceNormal
	if d.Importance != "" {
		parsed, err := ParseImportance(d.Importance)
		if err != nil {
			return Memory{}, err
		}
		importance = parsed
	}
	if importance == ImportanceNone {
		return Memory{}, ErrNotStored
	}

	ttl := time.Duration(d.ExpirationHours * float64(time.Hour))
	m := New(d.Content, importance, ttl, now)
	if d.Type != "" {
		m.Type = d.Type
	} else {
		m.Type = TypeFact
	}
	m.Tags = append([]string{"directive"}, d.Tags...)
	return m, nil
}
