package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	longExplanation := "A hash map stores key/value pairs in an array of buckets. The key is hashed by a function " +
		"and the result picks a bucket, which is why lookups are constant time on average. Collisions are handled " +
		"by chaining or open addressing."

	tests := []struct {
		name    string
		ex      Exchange
		want    Importance
		wantTTL time.Duration
		rule    string
	}{
		{
			name: "own name is a personal fact",
			ex:   Exchange{Query: "What's my name?", Answer: "Your name is Alex"},
			want: ImportanceHigh,
			rule: "personal_fact",
		},
		{
			name: "clock question is system state",
			ex:   Exchange{Query: "What time is it?", Answer: "It is 3:45 PM"},
			want: ImportanceNone,
			rule: "system_state",
		},
		{
			name: "date answer is system state",
			ex:   Exchange{Query: "remind me", Answer: "Today is Tuesday, the 4th of March, and nothing is scheduled."},
			want: ImportanceNone,
			rule: "system_state",
		},
		{
			name: "current date question is system state",
			ex:   Exchange{Query: "what's the date today?", Answer: "Tuesday, the 4th of March."},
			want: ImportanceNone,
			rule: "system_state",
		},
		{
			name: "historical date question is kept",
			ex: Exchange{
				Query: "What is the date of the Battle of Hastings and why does it matter?",
				Answer: "The Battle of Hastings was fought on 14 October 1066. It matters because William of Normandy's " +
					"victory ended Anglo-Saxon rule and reshaped the English language, its law and its landholding for centuries.",
			},
			want: ImportanceNormal,
			rule: "explanation",
		},
		{
			name: "tool confirmation",
			ex:   Exchange{Query: "Set the volume to 40", Answer: "I've set the volume to 40 for you."},
			want: ImportanceNone,
			rule: "tool_confirmation",
		},
		{
			name: "acknowledgement",
			ex:   Exchange{Query: "thanks a lot for the help with my move to Berlin", Answer: "You're welcome! Let me know if you need anything else."},
			want: ImportanceNone,
			rule: "acknowledgement",
		},
		{
			name: "short reply",
			ex:   Exchange{Query: "Is it on?", Answer: "Yes."},
			want: ImportanceNone,
			rule: "short_reply",
		},
		{
			name: "location",
			ex:   Exchange{Query: "I live in Lisbon, recommend a cafe", Answer: "Try Fábrica Coffee Roasters in Baixa."},
			want: ImportanceHigh,
			rule: "personal_fact",
		},
		{
			name: "profession",
			ex:   Exchange{Query: "I'm a backend developer, what should I learn next?", Answer: "Distributed systems basics would pay off."},
			want: ImportanceHigh,
			rule: "personal_fact",
		},
		{
			name: "relationship",
			ex:   Exchange{Query: "My sister is visiting, any plans?", Answer: "A walk along the river is always nice."},
			want: ImportanceHigh,
			rule: "personal_fact",
		},
		{
			name: "technical explanation",
			ex:   Exchange{Query: "How does a hash map work?", Answer: longExplanation},
			want: ImportanceNormal,
			rule: "explanation",
		},
		{
			name:    "residual conversation is volatile",
			ex:      Exchange{Query: "Any ideas for a weekend trip somewhere near the coast?", Answer: "A small fishing village with good seafood could be nice."},
			want:    ImportanceLow,
			wantTTL: 6 * time.Hour,
			rule:    "conversation",
		},
		{
			name: "tool output shape is not kept",
			ex:   Exchange{Query: "Dump the raw response from the status endpoint please", Answer: `{"status": "ok", "uptime": 12345, "version": "1.2.3"}`},
			want: ImportanceNone,
			rule: "default",
		},
		{
			name: "short chatter",
			ex:   Exchange{Query: "Hi there", Answer: "Hello! How are you?"},
			want: ImportanceNone,
			rule: "default",
		},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.Classify(tt.ex)
			assert.Equal(t, tt.want, out.Importance, "rule %s", out.Rule)
			assert.Equal(t, tt.wantTTL, out.TTL)
			assert.Equal(t, tt.rule, out.Rule)
		})
	}
}

func TestClassifyPermanence(t *testing.T) {
	c := NewClassifier()

	out := c.Classify(Exchange{Query: "What's my name?", Answer: "Your name is Alex"})
	assert.True(t, out.Store())
	assert.True(t, out.Permanent())

	out = c.Classify(Exchange{Query: "What time is it?", Answer: "It is 3:45 PM"})
	assert.False(t, out.Store())
}

func TestExclusionsRunFirst(t *testing.T) {
	// mentions a personal fact but is only a tool confirmation
	ex := Exchange{Query: "my favorite color is blue, set the lights to it", Answer: "I've set the lights to blue."}
	assert.Equal(t, ImportanceNone, NewClassifier().Classify(ex).Importance)
}

func TestAppendRule(t *testing.T) {
	c := NewClassifier()
	c.Append(Rule{
		Name:    "catch_all",
		Match:   func(Exchange) bool { return true },
		Outcome: Outcome{Importance: ImportanceLow, TTL: time.Hour},
	})
	out := c.Classify(Exchange{Query: "Hi there", Answer: "Hello! How are you?"})
	assert.Equal(t, "catch_all", out.Rule)
	assert.Len(t, c.Rules(), len(DefaultRules())+1)
}

func TestMemorize(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	c := NewClassifier()

	m, out, ok := c.Memorize(Exchange{Query: "What's my name?", Answer: "Your name is Alex"}, now)
	require.True(t, ok)
	assert.Equal(t, ImportanceHigh, out.Importance)
	assert.Equal(t, "User: What's my name?\nAssistant: Your name is Alex", m.Text)
	assert.False(t, m.Volatile)
	assert.Nil(t, m.ExpiresAt)
	assert.Equal(t, TypeFact, m.Type)

	m, _, ok = c.Memorize(Exchange{
		Query:  "Any ideas for a weekend trip somewhere near the coast?",
		Answer: "A small fishing village with good seafood could be nice.",
	}, now)
	require.True(t, ok)
	assert.True(t, m.Volatile)
	require.NotNil(t, m.ExpiresAt)
	assert.Equal(t, now.Add(6*time.Hour), *m.ExpiresAt)

	_, _, ok = c.Memorize(Exchange{Query: "What time is it?", Answer: "It is 3:45 PM"}, now)
	assert.False(t, ok)
}

func TestPredicatesArePure(t *testing.T) {
	ex := Exchange{Query: strings.Repeat("why does it work ", 3), Answer: strings.Repeat("because of the algorithm ", 10)}
	for i := 0; i < 3; i++ {
		assert.True(t, IsSubstantialExplanation(ex))
	}
	assert.True(t, LooksLikeToolOutput(`[{"id": 1}]`))
	assert.False(t, LooksLikeToolOutput("Plain words."))
}
