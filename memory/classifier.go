package memory

import (
	"fmt"
	"strings"
	"time"
)

// VolatileTTL is the lifetime of low-importance conversational memories.
const VolatileTTL = 6 * time.Hour

// Exchange is one completed user/assistant pair.
type Exchange struct {
	Query  string
	Answer string
}

// Text is the form an exchange is stored in.
func (e Exchange) Text() string {
	return fmt.Sprintf("User: %s\nAssistant: %s", strings.TrimSpace(e.Query), strings.TrimSpace(e.Answer))
}

// Outcome is the classification of an exchange. A zero TTL means permanent.
type Outcome struct {
	Importance Importance
	TTL        time.Duration
	Type       string
	// Rule names the rule that matched.
	Rule string
}

// Store reports whether the outcome should be persisted.
func (o Outcome) Store() bool { return o.Importance != ImportanceNone }

// Permanent reports whether the memory never expires.
func (o Outcome) Permanent() bool { return o.TTL == 0 }

// Rule pairs a predicate with the outcome it produces.
type Rule struct {
	Name    string
	Match   func(Exchange) bool
	Outcome Outcome
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier with DefaultRules.
func NewClassifier() *Classifier {
	return &Classifier{rules: DefaultRules()}
}

// Append adds a rule after the existing ones.
func (c *Classifier) Append(r Rule) {
	c.rules = append(c.rules, r)
}

// Rules returns a copy of the rule table.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify scores an exchange. Nothing matching yields importance none.
func (c *Classifier) Classify(ex Exchange) Outcome {
	for _, r := range c.rules {
		if r.Match(ex) {
			out := r.Outcome
			out.Rule = r.Name
			return out
		}
	}
	return Outcome{Importance: ImportanceNone, Rule: "default"}
}

// Memorize classifies ex and builds the memory to store, if any.
func (c *Classifier) Memorize(ex Exchange, now time.Time) (Memory, Outcome, bool) {
	out := c.Classify(ex)
	if !out.Store() {
		return Memory{}, out, false
	}
	m := New(ex.Text(), out.Importance, out.TTL, now)
	if out.Type != "" {
		m.Type = out.Type
	}
	m.Tags = []string{"auto", out.Rule}
	return m, out, true
}
