package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/model"
)

func call(name string, args map[string]any) model.ToolCall {
	return model.ToolCall{Name: name, Arguments: args}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"web_search", KindSearch},
		{"brave.search", KindSearch},
		{"kb_lookup", KindSearch},
		{"fetch_url", KindFetch},
		{"browser.browse", KindFetch},
		{"scrape_page", KindFetch},
		{"set_preference", KindMutation},
		{"home.adjust_volume", KindMutation},
		{"toggle_lights", KindMutation},
		{"current_time", KindGeneric},
		{"calculator", KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.name))
		})
	}
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "weather in paris", NormalizeQuery("  Weather, in   PARIS?! "))
	assert.Equal(t, "", NormalizeQuery("?!"))
}

func TestWordOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, WordOverlap("weather in paris", "paris weather"), 1e-9)
	assert.InDelta(t, 2.0/3.0, WordOverlap("weather in paris", "weather in rome"), 1e-9)
	assert.Equal(t, 0.0, WordOverlap("", "paris"))
}

func TestEvaluateRepeats(t *testing.T) {
	tests := []struct {
		name      string
		prior     []model.ToolCall
		next      []model.ToolCall
		wantAdmit bool
	}{
		{
			name:      "search reordered words is near duplicate",
			prior:     []model.ToolCall{call("web_search", map[string]any{"query": "weather in Paris"})},
			next:      []model.ToolCall{call("web_search", map[string]any{"query": "Paris weather"})},
			wantAdmit: false,
		},
		{
			name:      "search different city is admitted",
			prior:     []model.ToolCall{call("web_search", map[string]any{"query": "weather in Paris"})},
			next:      []model.ToolCall{call("web_search", map[string]any{"query": "weather in Rome"})},
			wantAdmit: true,
		},
		{
			name:      "search exact match after normalization",
			prior:     []model.ToolCall{call("web_search", map[string]any{"q": "Go generics?"})},
			next:      []model.ToolCall{call("web_search", map[string]any{"q": "go  generics"})},
			wantAdmit: false,
		},
		{
			name:      "same query on a different tool is admitted",
			prior:     []model.ToolCall{call("web_search", map[string]any{"query": "weather in Paris"})},
			next:      []model.ToolCall{call("news_search", map[string]any{"query": "weather in Paris"})},
			wantAdmit: true,
		},
		{
			name:      "fetch overlapping url set",
			prior:     []model.ToolCall{call("fetch_url", map[string]any{"urls": []any{"https://a.example/", "https://b.example"}})},
			next:      []model.ToolCall{call("fetch_url", map[string]any{"url": "https://B.example"})},
			wantAdmit: false,
		},
		{
			name:      "fetch disjoint url set",
			prior:     []model.ToolCall{call("fetch_url", map[string]any{"url": "https://a.example"})},
			next:      []model.ToolCall{call("fetch_url", map[string]any{"url": "https://c.example"})},
			wantAdmit: true,
		},
		{
			name:      "mutation same action same value",
			prior:     []model.ToolCall{call("set_preference", map[string]any{"key": "volume", "value": 40})},
			next:      []model.ToolCall{call("set_preference", map[string]any{"key": "volume", "value": 40})},
			wantAdmit: false,
		},
		{
			name:      "mutation same action different value",
			prior:     []model.ToolCall{call("set_preference", map[string]any{"key": "volume", "value": 40})},
			next:      []model.ToolCall{call("set_preference", map[string]any{"key": "volume", "value": 60})},
			wantAdmit: true,
		},
		{
			name:      "mutation different action same value",
			prior:     []model.ToolCall{call("set_preference", map[string]any{"key": "volume", "value": 40})},
			next:      []model.ToolCall{call("set_preference", map[string]any{"key": "brightness", "value": 40})},
			wantAdmit: true,
		},
		{
			name:      "mutation tool-specific value argument changed",
			prior:     []model.ToolCall{call("adjust_brightness", map[string]any{"brightness": 30})},
			next:      []model.ToolCall{call("adjust_brightness", map[string]any{"brightness": 70})},
			wantAdmit: true,
		},
		{
			name:      "mutation tool-specific value argument repeated",
			prior:     []model.ToolCall{call("adjust_brightness", map[string]any{"brightness": 30, "room": "office"})},
			next:      []model.ToolCall{call("adjust_brightness", map[string]any{"room": "office", "brightness": 30})},
			wantAdmit: false,
		},
		{
			name:      "generic identical arguments",
			prior:     []model.ToolCall{call("calculator", map[string]any{"a": 1, "b": 2})},
			next:      []model.ToolCall{call("calculator", map[string]any{"b": 2, "a": 1})},
			wantAdmit: false,
		},
		{
			name:      "generic different arguments",
			prior:     []model.ToolCall{call("calculator", map[string]any{"a": 1})},
			next:      []model.ToolCall{call("calculator", map[string]any{"a": 2})},
			wantAdmit: true,
		},
		{
			name:  "one repeat rejects the whole set",
			prior: []model.ToolCall{call("current_time", map[string]any{})},
			next: []model.ToolCall{
				call("calculator", map[string]any{"a": 1}),
				call("current_time", map[string]any{}),
			},
			wantAdmit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Config{})
			require.True(t, g.Evaluate(tt.prior).Admit)
			g.Record(tt.prior)

			v := g.Evaluate(tt.next)
			assert.Equal(t, tt.wantAdmit, v.Admit, v.Reason)
			assert.False(t, v.Ceiling)
			if !tt.wantAdmit {
				assert.NotEmpty(t, v.Reason)
				require.NotNil(t, v.Call)
				require.NotNil(t, v.Duplicate)
				assert.Equal(t, v.Call.Name, v.Duplicate.Name)
			}
		})
	}
}

func TestEvaluateCeiling(t *testing.T) {
	g := New(Config{MaxToolCalls: 10})

	for i := 0; i < 10; i++ {
		calls := []model.ToolCall{call("calculator", map[string]any{"n": i})}
		v := g.Evaluate(calls)
		require.True(t, v.Admit, "round %d", i+1)
		g.Record(calls)
	}
	assert.Equal(t, 10, g.Rounds())

	v := g.Evaluate([]model.ToolCall{call("calculator", map[string]any{"n": 10})})
	assert.False(t, v.Admit)
	assert.True(t, v.Ceiling)

	g.Record([]model.ToolCall{call("calculator", map[string]any{"n": 11})})
	assert.Equal(t, 10, g.Rounds(), "counter never exceeds the ceiling")
}

func TestHistoryEviction(t *testing.T) {
	g := New(Config{HistorySize: 2})
	first := []model.ToolCall{call("calculator", map[string]any{"n": 1})}
	g.Record(first)
	g.Record([]model.ToolCall{call("calculator", map[string]any{"n": 2})})
	g.Record([]model.ToolCall{call("calculator", map[string]any{"n": 3})})

	assert.True(t, g.Evaluate(first).Admit, "evicted set is no longer compared")
	assert.False(t, g.Evaluate([]model.ToolCall{call("calculator", map[string]any{"n": 3})}).Admit)
}

func TestReset(t *testing.T) {
	g := New(Config{})
	calls := []model.ToolCall{call("current_time", nil)}
	g.Record(calls)
	require.False(t, g.Evaluate(calls).Admit)

	g.Reset()
	assert.Equal(t, 0, g.Rounds())
	assert.True(t, g.Evaluate(calls).Admit)
}

func TestSetKindAndComparator(t *testing.T) {
	g := New(Config{})
	g.SetKind("ask_docs", KindSearch)
	g.Record([]model.ToolCall{call("ask_docs", map[string]any{"query": "install parley"})})
	assert.False(t, g.Evaluate([]model.ToolCall{call("ask_docs", map[string]any{"query": "parley install"})}).Admit)

	g.RegisterComparator("roll_dice", func(model.ToolCall, model.ToolCall) (string, bool) { return "", false })
	dice := []model.ToolCall{call("roll_dice", map[string]any{"sides": 6})}
	g.Record(dice)
	assert.True(t, g.Evaluate(dice).Admit, "custom comparator allows repeats")
}

func TestSynthesisDirective(t *testing.T) {
	msg := SynthesisDirective(Verdict{Reason: "web_search was already called"})
	assert.Contains(t, msg, "web_search was already called")
	assert.Contains(t, msg, "STOP CALLING TOOLS")
	assert.Contains(t, CeilingExplanation(10), "10 tool rounds")
}
