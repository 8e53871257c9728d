package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitReasoning(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		answer    string
		reasoning string
	}{
		{"no reasoning", "Just an answer.", "Just an answer.", ""},
		{"single block", "<think>plan</think>Answer.", "Answer.", "plan"},
		{"multiple blocks", "<think>a</think>One <think>b</think>two", "One two", "a\n\nb"},
		{"unclosed block", "Answer first <think>still thinking", "Answer first", "still thinking"},
		{"missing opening tag", "hidden plan</think>Visible.", "Visible.", "hidden plan"},
		{"empty block", "<think>  </think>Answer.", "Answer.", ""},
		{"multiline", "<think>line one\nline two</think>\nDone.", "Done.", "line one\nline two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, reasoning := SplitReasoning(tt.input)
			assert.Equal(t, tt.answer, answer)
			assert.Equal(t, tt.reasoning, reasoning)
		})
	}
}
