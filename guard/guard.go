// Package guard detects looping tool usage within a single user turn.
//
// The guard keeps the last few executed call sets in a ring and a counter of
// backend/tool round trips. Before a new set is executed, Evaluate compares
// every call against retained calls of the same tool using a rule picked by
// the tool's kind, and checks the round ceiling.
package guard

import (
	"fmt"
	"strings"
	"sync"

	"parley/model"
)

const (
	DefaultHistorySize         = 5
	DefaultMaxToolCalls        = 10
	DefaultSimilarityThreshold = 0.8
)

// Config tunes the guard. Zero fields take the defaults.
type Config struct {
	HistorySize         int
	MaxToolCalls        int
	SimilarityThreshold float64
}

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = DefaultMaxToolCalls
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return c
}

// Verdict is the outcome of evaluating one call set.
type Verdict struct {
	// Admit is true when the set may be executed.
	Admit bool
	// Ceiling is true when the round budget for the turn is spent.
	Ceiling bool
	// Reason explains a rejection.
	Reason string
	// Call is the offending new call, Duplicate the retained call it repeats.
	Call      *model.ToolCall
	Duplicate *model.ToolCall
}

// Guard is turn-scoped state. It is safe for concurrent use, although the
// orchestration loop is its only writer.
type Guard struct {
	mu          sync.Mutex
	cfg         Config
	history     *Ring[[]model.ToolCall]
	rounds      int
	kinds       map[string]Kind
	comparators map[string]Comparator
}

// New creates a guard.
func New(cfg Config) *Guard {
	cfg = cfg.withDefaults()
	return &Guard{
		cfg:         cfg,
		history:     NewRing[[]model.ToolCall](cfg.HistorySize),
		kinds:       make(map[string]Kind),
		comparators: make(map[string]Comparator),
	}
}

// Config returns the effective configuration.
func (g *Guard) Config() Config { return g.cfg }

// SetKind overrides the name-based classification for a tool.
func (g *Guard) SetKind(toolName string, kind Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kinds[toolName] = kind
}

// RegisterComparator installs a custom repeat check for a tool. It takes
// precedence over any kind.
func (g *Guard) RegisterComparator(toolName string, cmp Comparator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cmp == nil {
		delete(g.comparators, toolName)
		return
	}
	g.comparators[toolName] = cmp
}

// Reset clears the history and the round counter. Called at the start of
// every new user turn, never between rounds of the same turn.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history.Clear()
	g.rounds = 0
}

// Rounds returns how many call sets were executed this turn.
func (g *Guard) Rounds() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rounds
}

// Evaluate decides whether calls may run.
func (g *Guard) Evaluate(calls []model.ToolCall) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rounds >= g.cfg.MaxToolCalls {
		return Verdict{
			Ceiling: true,
			Reason:  fmt.Sprintf("tool round limit of %d reached", g.cfg.MaxToolCalls),
		}
	}

	history := g.history.Items()
	for i := range calls {
		call := calls[i]
		cmp := g.comparatorFor(call.Name)
		// newest sets first so the reason points at the latest repeat
		for h := len(history) - 1; h >= 0; h-- {
			for j := range history[h] {
				prior := history[h][j]
				if prior.Name != call.Name {
					continue
				}
				if reason, dup := cmp(call, prior); dup {
					return Verdict{Reason: reason, Call: &call, Duplicate: &prior}
				}
			}
		}
	}

	return Verdict{Admit: true}
}

// Record stores an executed call set and counts the round.
func (g *Guard) Record(calls []model.ToolCall) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := make([]model.ToolCall, len(calls))
	copy(set, calls)
	g.history.Push(set)
	if g.rounds < g.cfg.MaxToolCalls {
		g.rounds++
	}
}

func (g *Guard) comparatorFor(name string) Comparator {
	if cmp, ok := g.comparators[name]; ok {
		return cmp
	}
	kind, ok := g.kinds[name]
	if !ok {
		kind = KindOf(name)
	}
	switch kind {
	case KindSearch:
		return searchComparator(g.cfg.SimilarityThreshold)
	case KindFetch:
		return fetchComparator
	case KindMutation:
		return mutationComparator
	default:
		return genericComparator
	}
}

// SynthesisDirective builds the one-shot instruction sent after a rejected
// call set: answer from the results already gathered, propose nothing new.
func SynthesisDirective(v Verdict) string {
	var b strings.Builder
	b.WriteString("STOP CALLING TOOLS. ")
	if v.Reason != "" {
		b.WriteString("The requested tool call repeats earlier work: ")
		b.WriteString(v.Reason)
		b.WriteString(". ")
	}
	b.WriteString("Answer the user's last question now using only the tool results already provided in this conversation. ")
	b.WriteString("If those results are insufficient, say so plainly instead of calling another tool.")
	return b.String()
}

// CeilingExplanation is the user-visible note attached to an answer that was
// finalized because the round budget ran out.
func CeilingExplanation(maxRounds int) string {
	return fmt.Sprintf("Stopped after %d tool rounds for this message. The answer above uses the results gathered so far.", maxRounds)
}
