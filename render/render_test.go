package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/model"
	"parley/storage"
)

var now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func TestFormatPlain(t *testing.T) {
	term := New(&bytes.Buffer{}, Options{Plain: true, Width: 40})

	tests := []struct {
		name     string
		msg      model.Message
		expected string
	}{
		{
			name:     "user",
			msg:      model.NewMessage(model.SenderUser, "hello there", now),
			expected: "You\n  hello there",
		},
		{
			name:     "assistant",
			msg:      model.NewMessage(model.SenderAssistant, "**hi**", now),
			expected: "Assistant\n  **hi**",
		},
		{
			name:     "intermediate",
			msg:      model.Message{Sender: model.SenderAssistant, Text: "thinking", Intermediate: true},
			expected: "  … thinking",
		},
		{
			name:     "error",
			msg:      model.NewMessage(model.SenderSystem, "backend unreachable", now),
			expected: "! backend unreachable",
		},
		{
			name: "tool results",
			msg: model.Message{Sender: model.SenderSystem, ToolResults: []model.ToolResult{
				model.Success(model.ToolCall{Name: "web_search"}, "ok"),
				model.Failure(model.ToolCall{Name: "fetch_url"}, "timeout"),
			}},
			expected: "  ✓ web_search\n  ✗ fetch_url: timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, term.Format(tt.msg))
		})
	}
}

func TestFormatWraps(t *testing.T) {
	term := New(&bytes.Buffer{}, Options{Plain: true, Width: 20})
	got := term.Format(model.NewMessage(model.SenderUser, "one two three four five six seven", now))
	for _, line := range strings.Split(got, "\n") {
		assert.LessOrEqual(t, len(line), 20, line)
	}
	assert.Contains(t, got, "seven")
}

func TestTimestamps(t *testing.T) {
	term := New(&bytes.Buffer{}, Options{Plain: true, Timestamps: true})
	got := term.Format(model.NewMessage(model.SenderUser, "hi", now))
	assert.Contains(t, got, now.Local().Format(timeLayout))
}

func TestRemoveIntermediate(t *testing.T) {
	var buf bytes.Buffer
	term := New(&buf, Options{})

	status := model.Message{ID: "s1", Sender: model.SenderAssistant, Text: "Working", Intermediate: true}
	term.RenderMessage(status)
	before := buf.Len()

	term.RemoveIntermediate("other")
	assert.Equal(t, before, buf.Len(), "only the last block can be erased")

	term.RemoveIntermediate("s1")
	assert.True(t, strings.HasSuffix(buf.String(), "\x1b[1A\x1b[J"))

	term.RemoveIntermediate("s1")
	assert.True(t, strings.HasSuffix(buf.String(), "\x1b[1A\x1b[J"), "erasing twice is a no-op")
	assert.Equal(t, 1, strings.Count(buf.String(), "\x1b[J"))
}

func TestRemoveIntermediatePlain(t *testing.T) {
	var buf bytes.Buffer
	term := New(&buf, Options{Plain: true})
	term.RenderMessage(model.Message{ID: "s1", Text: "Working", Intermediate: true})
	term.RemoveIntermediate("s1")
	assert.Equal(t, "  … Working\n", buf.String())
}

func TestMarkdownBody(t *testing.T) {
	term := New(&bytes.Buffer{}, Options{Width: 60})
	got := term.Format(model.NewMessage(model.SenderAssistant, "See [docs](https://example.com/docs) and **bold** text.", now))
	assert.Contains(t, got, "https://example.com/docs")
	assert.NotContains(t, got, "[docs]")
	assert.NotContains(t, got, "**")
}

func TestTranscript(t *testing.T) {
	s := storage.NewSession(storage.ProviderSnapshot{ID: "ollama", Model: "llama3"}, now)
	s.Name = "Trip planning"
	s.Append(model.NewMessage(model.SenderUser, "plan a trip", now))
	hidden := model.NewMessage(model.SenderAssistant, "secret reasoning", now)
	hidden.Intermediate = true
	s.Append(hidden)
	s.Append(model.NewMessage(model.SenderAssistant, "Go to Lyon.", now))

	got := New(&bytes.Buffer{}, Options{Plain: true}).Transcript(s)
	require.True(t, strings.HasPrefix(got, "Trip planning\n"))
	assert.Contains(t, got, "ollama/llama3")
	assert.Contains(t, got, "plan a trip")
	assert.Contains(t, got, "Go to Lyon.")
	assert.NotContains(t, got, "secret reasoning")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapText("short", 10))
	assert.Equal(t, []string{"aaaa", "aaaa", "aa b"}, wrapText("aaaaaaaaaa b", 4))
	assert.Equal(t, []string{"東京は", "晴れ"}, wrapText("東京は 晴れ", 6))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", Preview("a\n  b"))
	long := strings.Repeat("x", 200)
	assert.Equal(t, 80, len(Preview(long)))
	assert.True(t, strings.HasSuffix(Preview(long), "..."))
}
