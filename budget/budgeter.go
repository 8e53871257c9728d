// Package budget assembles outgoing prompts under a provider token ceiling.
//
// Messages are placed in priority tiers:
//
//  1. the system prompt (truncated so the reserve floor stays free)
//  2. the most recent exchange, always present, shrunk if it must be
//  3. the other critical exchanges, whole, while they fit
//  4. important tool and system context, while under 80% of the ceiling
//  5. regular history, newest first, each message capped at 10% of the
//     ceiling, while the reserve floor stays free
//
// Selected messages are then put back in chronological order and an
// "[N older messages omitted]" marker is prepended when it fits.
package budget

import (
	"fmt"
	"math"
	"sort"

	"parley/model"
)

const (
	DefaultMinReserve        = 256
	DefaultCriticalExchanges = 2
	DefaultContextWindow     = 8192

	reserveFraction   = 0.25
	importantFraction = 0.8
	regularFraction   = 0.1
)

// Config describes the active provider limits.
type Config struct {
	// ContextWindow is the provider's context size in tokens.
	ContextWindow int
	// UserLimit is the user-configured context limit; zero means none.
	UserLimit int
	// CharsPerToken is the provider's approximate characters per token.
	CharsPerToken float64
	// MinReserve is the smallest reserve floor in tokens.
	MinReserve int
	// CriticalExchanges is how many recent exchanges, the last included,
	// are kept whole when they fit.
	CriticalExchanges int
}

func (c Config) withDefaults() Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = DefaultContextWindow
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = DefaultCharsPerToken
	}
	if c.MinReserve <= 0 {
		c.MinReserve = DefaultMinReserve
	}
	if c.CriticalExchanges <= 0 {
		c.CriticalExchanges = DefaultCriticalExchanges
	}
	return c
}

// Input is everything the budgeter selects from.
type Input struct {
	SystemPrompt string
	// History is the full session in chronological order. The last user
	// message starts the exchange in progress.
	History []model.Message
}

// Budgeter builds prompts for one provider configuration.
type Budgeter struct {
	cfg Config
}

// New creates a budgeter.
func New(cfg Config) *Budgeter {
	return &Budgeter{cfg: cfg.withDefaults()}
}

// Ceiling returns min(user limit, context window).
func (b *Budgeter) Ceiling() int {
	ceiling := b.cfg.ContextWindow
	if b.cfg.UserLimit > 0 && b.cfg.UserLimit < ceiling {
		ceiling = b.cfg.UserLimit
	}
	return ceiling
}

// Reserve returns the floor kept free for the most recent exchange.
func (b *Budgeter) Reserve() int {
	ceiling := b.Ceiling()
	reserve := int(math.Ceil(reserveFraction * float64(ceiling)))
	if reserve < b.cfg.MinReserve {
		reserve = b.cfg.MinReserve
	}
	if reserve > ceiling {
		reserve = ceiling
	}
	return reserve
}

// Estimate is EstimateTokens with the configured ratio.
func (b *Budgeter) Estimate(text string) int {
	return EstimateTokens(text, b.cfg.CharsPerToken)
}

// candidate is a history message considered for the prompt.
type candidate struct {
	index   int // position in the filtered history
	role    model.Role
	content string
	tokens  int
}

// Build assembles the prompt. The estimate of the result never exceeds
// Ceiling().
func (b *Budgeter) Build(in Input) model.Prompt {
	ceiling := b.Ceiling()
	reserve := b.Reserve()
	cpt := b.cfg.CharsPerToken

	used := 0
	var system *model.PromptMessage
	if in.SystemPrompt != "" {
		text := Truncate(in.SystemPrompt, ceiling-reserve, cpt)
		if text != "" {
			system = &model.PromptMessage{Role: model.RoleSystem, Content: text}
			used += b.Estimate(text)
		}
	}

	history := make([]candidate, 0, len(in.History))
	for _, m := range in.History {
		if m.Intermediate {
			continue
		}
		history = append(history, candidate{
			index:   len(history),
			role:    roleOf(m),
			content: m.Text,
			tokens:  b.Estimate(m.Text),
		})
	}

	exchanges := splitExchanges(history)
	selected := make(map[int]candidate)

	// Tier 1: the most recent exchange, shrunk to fit whatever is left.
	if len(exchanges) > 0 {
		last := exchanges[len(exchanges)-1]
		shrunk := b.shrinkToFit(last, ceiling-used)
		for _, c := range shrunk {
			selected[c.index] = c
			used += c.tokens
		}
		exchanges = exchanges[:len(exchanges)-1]
	}

	// Tier 2: other critical exchanges, whole or not at all.
	for n := 1; n < b.cfg.CriticalExchanges && len(exchanges) > 0; n++ {
		ex := exchanges[len(exchanges)-1]
		cost := 0
		for _, c := range ex {
			cost += c.tokens
		}
		if used+cost > ceiling {
			break
		}
		for _, c := range ex {
			selected[c.index] = c
		}
		used += cost
		exchanges = exchanges[:len(exchanges)-1]
	}

	var rest []candidate
	for _, ex := range exchanges {
		rest = append(rest, ex...)
	}

	// Tier 3: tool and system context, newest first.
	importantCeiling := int(importantFraction * float64(ceiling))
	for i := len(rest) - 1; i >= 0; i-- {
		c := rest[i]
		if c.role != model.RoleTool && c.role != model.RoleSystem {
			continue
		}
		if used+c.tokens > importantCeiling {
			continue
		}
		selected[c.index] = c
		used += c.tokens
	}

	// Tier 4: regular messages, newest first, each capped.
	perMessage := int(regularFraction * float64(ceiling))
	regularCeiling := ceiling - reserve
	for i := len(rest) - 1; i >= 0; i-- {
		c := rest[i]
		if _, ok := selected[c.index]; ok {
			continue
		}
		if c.tokens > perMessage {
			c.content = Truncate(c.content, perMessage, cpt)
			c.tokens = b.Estimate(c.content)
		}
		if c.tokens == 0 || used+c.tokens > regularCeiling {
			break
		}
		selected[c.index] = c
		used += c.tokens
	}

	chosen := make([]candidate, 0, len(selected))
	for _, c := range selected {
		chosen = append(chosen, c)
	}
	sort.Slice(chosen, func(i, j int) bool { return chosen[i].index < chosen[j].index })

	prompt := model.Prompt{Omitted: len(history) - len(chosen)}
	if system != nil {
		prompt.Messages = append(prompt.Messages, *system)
	}
	if prompt.Omitted > 0 {
		marker := OmittedMarker(prompt.Omitted)
		if cost := b.Estimate(marker); used+cost <= ceiling {
			prompt.Messages = append(prompt.Messages, model.PromptMessage{Role: model.RoleSystem, Content: marker})
			used += cost
		}
	}
	for _, c := range chosen {
		if c.content == "" {
			continue
		}
		prompt.Messages = append(prompt.Messages, model.PromptMessage{Role: c.role, Content: c.content})
	}
	prompt.EstimatedTokens = used
	return prompt
}

// OmittedMarker is the note standing in for dropped history.
func OmittedMarker(n int) string {
	return fmt.Sprintf("[%d older messages omitted]", n)
}

// shrinkToFit truncates the largest messages of an exchange until its total
// fits in avail tokens.
func (b *Budgeter) shrinkToFit(ex []candidate, avail int) []candidate {
	out := make([]candidate, len(ex))
	copy(out, ex)
	if avail < 0 {
		avail = 0
	}

	total := 0
	for _, c := range out {
		total += c.tokens
	}
	for total > avail {
		largest := 0
		for i := range out {
			if out[i].tokens > out[largest].tokens {
				largest = i
			}
		}
		if out[largest].tokens == 0 {
			break
		}
		excess := total - avail
		target := out[largest].tokens - excess
		// never shrink a message below half of its size in one step while
		// another message is still larger than the result
		if half := out[largest].tokens / 2; target < half && secondLargest(out, largest) > half {
			target = half
		}
		content := Truncate(out[largest].content, target, b.cfg.CharsPerToken)
		tokens := b.Estimate(content)
		total -= out[largest].tokens - tokens
		out[largest].content = content
		out[largest].tokens = tokens
	}
	return out
}

func secondLargest(cs []candidate, skip int) int {
	most := 0
	for i, c := range cs {
		if i != skip && c.tokens > most {
			most = c.tokens
		}
	}
	return most
}

// splitExchanges groups history into exchanges, each starting at a user
// message. Messages before the first user message form their own group.
func splitExchanges(history []candidate) [][]candidate {
	var exchanges [][]candidate
	for _, c := range history {
		if c.role == model.RoleUser || len(exchanges) == 0 {
			exchanges = append(exchanges, []candidate{c})
			continue
		}
		last := len(exchanges) - 1
		exchanges[last] = append(exchanges[last], c)
	}
	return exchanges
}

func roleOf(m model.Message) model.Role {
	if len(m.ToolResults) > 0 {
		return model.RoleTool
	}
	switch m.Sender {
	case model.SenderUser:
		return model.RoleUser
	case model.SenderAssistant:
		return model.RoleAssistant
	default:
		return model.RoleSystem
	}
}
