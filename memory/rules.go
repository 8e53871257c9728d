package memory

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minAnswerRunes      = 10
	substantialRunes    = 150
	residualCombinedLen = 80
)

// DefaultRules is the built-in decision list. Exclusions come first so that
// transient tool chatter is never promoted by a broader rule further down.
func DefaultRules() []Rule {
	none := Outcome{Importance: ImportanceNone}
	return []Rule{
		{Name: "tool_confirmation", Match: IsToolConfirmation, Outcome: none},
		{Name: "system_state", Match: IsSystemState, Outcome: none},
		{Name: "acknowledgement", Match: IsAcknowledgement, Outcome: none},
		{Name: "short_reply", Match: IsShortReply, Outcome: none},
		{Name: "personal_fact", Match: IsPersonalFact, Outcome: Outcome{Importance: ImportanceHigh, Type: TypeFact}},
		{Name: "explanation", Match: IsSubstantialExplanation, Outcome: Outcome{Importance: ImportanceNormal, Type: TypeFact}},
		{Name: "conversation", Match: IsResidualConversation, Outcome: Outcome{Importance: ImportanceLow, TTL: VolatileTTL, Type: TypeConversation}},
	}
}

var (
	toolConfirmationRegex = regexp.MustCompile(`(?i)^\s*(done[.!]?\s*$|i('ve| have) (set|adjusted|turned|updated|changed|toggled|enabled|disabled|switched)\b|(successfully|now) (set|updated|executed|changed|called)\b|the (tool|function) (was |has been )?(executed|called|run)\b|executing (the )?tool\b|tool (call|execution) (succeeded|completed|failed))`)

	// Only questions about the present moment; "what is the date of ..." is not one.
	systemStateQueryRegex  = regexp.MustCompile(`(?i)\bwhat('s| is)\s+(the\s+)?(time|date|day)(\s+(now|today|right now|is it|it is))?\s*[?.!]*\s*$|\bwhat('s| is)\s+(the\s+)?current\s+(time|date|day)\b|\bwhat('s| is) today's (date|day)\b|\bwhat (time|date|day) is (it|today)\b`)
	systemStateAnswerRegex = regexp.MustCompile(`(?i)^\s*(it('s| is)\s+(currently\s+)?\d{1,2}:\d{2}|the (current )?(time|date) is\b|today is\b|it('s| is) (currently )?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b|(the )?(volume|brightness|battery|temperature) is (now |currently )?(at |set to )?\d+)`)

	acknowledgementRegex = regexp.MustCompile(`(?i)^\s*(ok(ay)?|sure|got it|alright|all right|no problem|thanks|thank you|you're welcome|you are welcome|great|cool|noted|understood|will do|sounds good|happy to help|glad (i could|to) help)\b[\s.!,]*(let me know[^.]*[.!]?|is there anything else[^?]*\?)?\s*$`)

	personalFactRegexes = []*regexp.Regexp{
		// identity
		regexp.MustCompile(`(?i)\b(my name is|i am called|call me|your name is|you are called|what('s| is) my name)\b`),
		// location
		regexp.MustCompile(`(?i)\b(i live in|i'm from|i am from|i'm based in|my home is|you live in|you're from|you are from)\b`),
		// durable preferences
		regexp.MustCompile(`(?i)\b(i (really )?(prefer|love|hate|dislike|always)|my favou?rite|you prefer|your favou?rite|i'm allergic|i am allergic|i'm vegetarian|i am vegetarian|i'm vegan|i am vegan)\b`),
		// skill or profession
		regexp.MustCompile(`(?i)\b(i work (as|at|for)|(i'm|i am) an? ([a-z]+ )?(developer|engineer|designer|teacher|doctor|nurse|student|manager|writer|scientist)|my (job|profession|occupation) is|you work (as|at|for))\b`),
		// named relationships
		regexp.MustCompile(`(?i)\bmy (wife|husband|partner|son|daughter|mother|mom|father|dad|brother|sister|friend|boss|dog|cat)('s name)? is\b|\byour (wife|husband|partner|son|daughter|mother|father|brother|sister|dog|cat)('s name)? is\b`),
	}

	educationalRegex = regexp.MustCompile(`(?i)\b(explain|because|means|defined as|definition|algorithm|function|process|theory|history|concept|principle|example|for instance|how (to|does|do|can)|why (does|do|is|are)|step \d|first,|in summary|architecture|protocol|equation|formula)\b`)

	toolOutputRegex = regexp.MustCompile("(?s)^\\s*[\\[{]|```(json|xml|yaml)|\"tool\"\\s*:|^\\s*(error|status|result)\\s*:")
)

// IsToolConfirmation matches replies that only confirm a tool action.
func IsToolConfirmation(ex Exchange) bool {
	return toolConfirmationRegex.MatchString(ex.Answer)
}

// IsSystemState matches questions or answers about the clock, calendar or
// device state, which are stale almost immediately.
func IsSystemState(ex Exchange) bool {
	return systemStateQueryRegex.MatchString(ex.Query) || systemStateAnswerRegex.MatchString(ex.Answer)
}

// IsAcknowledgement matches generic pleasantries.
func IsAcknowledgement(ex Exchange) bool {
	return acknowledgementRegex.MatchString(ex.Answer)
}

// IsShortReply matches answers too short to carry information.
func IsShortReply(ex Exchange) bool {
	return utf8.RuneCountInString(strings.TrimSpace(ex.Answer)) < minAnswerRunes
}

// IsPersonalFact matches identity, location, preference, profession and
// relationship statements on either side of the exchange.
func IsPersonalFact(ex Exchange) bool {
	for _, re := range personalFactRegexes {
		if re.MatchString(ex.Query) || re.MatchString(ex.Answer) {
			return true
		}
	}
	return false
}

// IsSubstantialExplanation matches long educational or technical answers.
func IsSubstantialExplanation(ex Exchange) bool {
	if utf8.RuneCountInString(strings.TrimSpace(ex.Answer)) < substantialRunes {
		return false
	}
	return educationalRegex.MatchString(ex.Query) || educationalRegex.MatchString(ex.Answer)
}

// IsResidualConversation matches remaining dialogue long enough to be worth
// keeping for a while, unless the answer looks like raw tool output.
func IsResidualConversation(ex Exchange) bool {
	combined := utf8.RuneCountInString(strings.TrimSpace(ex.Query)) + utf8.RuneCountInString(strings.TrimSpace(ex.Answer))
	if combined < residualCombinedLen {
		return false
	}
	return !LooksLikeToolOutput(ex.Answer)
}

// LooksLikeToolOutput reports whether text is shaped like structured tool output.
func LooksLikeToolOutput(text string) bool {
	return toolOutputRegex.MatchString(text)
}
