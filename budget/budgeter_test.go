package budget

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/model"
)

func msg(sender model.Sender, text string) model.Message {
	return model.NewMessage(sender, text, time.Now())
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		cpt  float64
		want int
	}{
		{"", 4, 0},
		{"abcd", 4, 2},
		{strings.Repeat("a", 40), 4, 11},
		{strings.Repeat("é", 35), 3.5, 11}, // runes, not bytes
		{strings.Repeat("a", 40), 0, 11},   // default ratio
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text, tt.cpt), "%q/%v", tt.text, tt.cpt)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("word ", 200)
	for _, max := range []int{0, 1, 3, 5, 6, 20, 100} {
		out := Truncate(long, max, 4)
		assert.LessOrEqual(t, EstimateTokens(out, 4), max, "max %d", max)
	}
	assert.Equal(t, "short", Truncate("short", 100, 4))
	assert.True(t, strings.HasSuffix(Truncate(long, 50, 4), truncationSuffix))
}

func TestCeilingAndReserve(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantCeiling int
		wantReserve int
	}{
		{"window only", Config{ContextWindow: 8192}, 8192, 2048},
		{"user limit lower", Config{ContextWindow: 8192, UserLimit: 2000}, 2000, 500},
		{"user limit higher is ignored", Config{ContextWindow: 4000, UserLimit: 10000}, 4000, 1000},
		{"minimum reserve", Config{ContextWindow: 800, MinReserve: 256}, 800, 256},
		{"reserve capped at ceiling", Config{ContextWindow: 100, MinReserve: 500}, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.cfg)
			assert.Equal(t, tt.wantCeiling, b.Ceiling())
			assert.Equal(t, tt.wantReserve, b.Reserve())
		})
	}
}

// longHistory builds n exchanges whose user and assistant texts are each
// about tokensPerMessage tokens at 4 chars per token.
func longHistory(n, tokensPerMessage int) []model.Message {
	var history []model.Message
	body := strings.Repeat("x", tokensPerMessage*4)
	for i := 0; i < n; i++ {
		history = append(history,
			msg(model.SenderUser, fmt.Sprintf("question %d %s", i, body)),
			msg(model.SenderAssistant, fmt.Sprintf("answer %d %s", i, body)),
		)
	}
	return history
}

func promptTokens(p model.Prompt, cpt float64) int {
	total := 0
	for _, m := range p.Messages {
		total += EstimateTokens(m.Content, cpt)
	}
	return total
}

func TestBuildFitsCeiling(t *testing.T) {
	b := New(Config{ContextWindow: 8192, UserLimit: 2000, CharsPerToken: 4})

	history := longHistory(25, 90) // ~5000 tokens
	history = append(history,
		msg(model.SenderUser, "What did we decide about the launch?"),
		msg(model.SenderAssistant, "We agreed to ship on Friday."),
	)
	total := 0
	for _, m := range history {
		total += b.Estimate(m.Text)
	}
	require.Greater(t, total, 5000)

	p := b.Build(Input{SystemPrompt: "You are a helpful assistant.", History: history})

	assert.LessOrEqual(t, promptTokens(p, 4), 2000)
	assert.Equal(t, promptTokens(p, 4), p.EstimatedTokens)
	assert.Greater(t, p.Omitted, 0)

	require.GreaterOrEqual(t, len(p.Messages), 4)
	assert.Equal(t, model.RoleSystem, p.Messages[0].Role)
	assert.Equal(t, OmittedMarker(p.Omitted), p.Messages[1].Content)

	n := len(p.Messages)
	assert.Equal(t, "What did we decide about the launch?", p.Messages[n-2].Content)
	assert.Equal(t, "We agreed to ship on Friday.", p.Messages[n-1].Content)
}

func TestBuildChronologicalOrder(t *testing.T) {
	b := New(Config{ContextWindow: 1000, CharsPerToken: 4})
	history := longHistory(20, 30)

	p := b.Build(Input{History: history})

	var seen []int
	for _, m := range p.Messages {
		var kind string
		var i int
		if _, err := fmt.Sscanf(m.Content, "%s %d", &kind, &i); err == nil {
			seen = append(seen, i)
		}
	}
	require.NotEmpty(t, seen)
	for k := 1; k < len(seen); k++ {
		assert.LessOrEqual(t, seen[k-1], seen[k])
	}
	assert.Equal(t, 19, seen[len(seen)-1])
}

func TestBuildShrinksOversizedLastExchange(t *testing.T) {
	b := New(Config{ContextWindow: 500, CharsPerToken: 4})
	huge := strings.Repeat("tool output line\n", 400) // ~1900 tokens
	history := []model.Message{
		msg(model.SenderUser, "summarize the logs"),
		{Sender: model.SenderSystem, Text: huge, ToolResults: []model.ToolResult{{ToolName: "read_logs", Payload: "..."}}},
	}

	p := b.Build(Input{SystemPrompt: strings.Repeat("rules ", 400), History: history})

	assert.LessOrEqual(t, promptTokens(p, 4), 500)
	require.Len(t, p.Messages, 3)
	assert.Equal(t, "summarize the logs", p.Messages[1].Content)
	assert.Equal(t, model.RoleTool, p.Messages[2].Role)
	assert.True(t, strings.HasSuffix(p.Messages[2].Content, truncationSuffix))
	assert.Equal(t, 0, p.Omitted)
}

func TestBuildSkipsIntermediate(t *testing.T) {
	b := New(Config{ContextWindow: 8192})
	thinking := msg(model.SenderAssistant, "Thinking…")
	thinking.Intermediate = true
	history := []model.Message{
		msg(model.SenderUser, "hi"),
		thinking,
		msg(model.SenderAssistant, "hello"),
	}

	p := b.Build(Input{History: history})

	require.Len(t, p.Messages, 2)
	assert.Equal(t, "hi", p.Messages[0].Content)
	assert.Equal(t, "hello", p.Messages[1].Content)
	assert.Equal(t, 0, p.Omitted)
}

func TestBuildPrefersToolContext(t *testing.T) {
	b := New(Config{ContextWindow: 1200, CharsPerToken: 4, CriticalExchanges: 1})

	history := longHistory(6, 60)
	toolMsg := model.Message{
		Sender:      model.SenderSystem,
		Text:        "Tool results: the build is green",
		ToolResults: []model.ToolResult{{ToolName: "ci_status", Payload: "green"}},
	}
	// tool context lands in an old exchange
	history = append(history[:2], append([]model.Message{toolMsg}, history[2:]...)...)
	history = append(history, msg(model.SenderUser, "is it green?"))

	p := b.Build(Input{History: history})

	var contents []string
	for _, m := range p.Messages {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "Tool results: the build is green")
	assert.LessOrEqual(t, promptTokens(p, 4), 1200)
}

func TestBuildMarkerOnlyWhenItFits(t *testing.T) {
	// a single exchange that fills the whole ceiling leaves no room for a marker
	b := New(Config{ContextWindow: 100, CharsPerToken: 4, MinReserve: 1})
	history := []model.Message{
		msg(model.SenderUser, strings.Repeat("old ", 100)),
		msg(model.SenderAssistant, strings.Repeat("old ", 100)),
		msg(model.SenderUser, strings.Repeat("new ", 200)),
	}

	p := b.Build(Input{History: history})

	assert.LessOrEqual(t, promptTokens(p, 4), 100)
	assert.Equal(t, 2, p.Omitted)
	for _, m := range p.Messages {
		assert.NotEqual(t, OmittedMarker(2), m.Content)
	}
}
