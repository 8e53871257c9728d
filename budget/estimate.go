package budget

import (
	"math"
	"unicode/utf8"
)

// formattingOverhead covers role labels, separators and other framing a
// backend adds around message content.
const formattingOverhead = 1.1

// DefaultCharsPerToken is used when a provider does not declare a ratio.
const DefaultCharsPerToken = 4.0

// EstimateTokens approximates the token count of text as
// ceil(ceil(runes / charsPerToken) * 1.1).
//
// This is a deliberate approximation, not a tokenizer: it is cheap, needs no
// per-model vocabulary and errs on the high side for the providers we ship
// ratios for. Empty text costs nothing.
func EstimateTokens(text string, charsPerToken float64) int {
	if text == "" {
		return 0
	}
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	base := int(math.Ceil(float64(utf8.RuneCountInString(text)) / charsPerToken))
	// ceil(base * 1.1) in integers to stay clear of float rounding
	return (base*11 + 9) / 10
}

const truncationSuffix = " …[truncated]"

// Truncate shortens text so that its estimate does not exceed maxTokens.
// A truncation suffix is appended when it fits. maxTokens <= 0 yields "".
func Truncate(text string, maxTokens int, charsPerToken float64) string {
	if EstimateTokens(text, charsPerToken) <= maxTokens {
		return text
	}
	if maxTokens <= 0 {
		return ""
	}
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}

	runes := []rune(text)
	// upper bound from inverting the estimate, then walk down to an exact fit
	keep := int(float64(maxTokens) / formattingOverhead * charsPerToken)
	if keep > len(runes) {
		keep = len(runes)
	}

	suffix := truncationSuffix
	if EstimateTokens(suffix, charsPerToken) >= maxTokens {
		suffix = ""
	}
	for keep > 0 {
		candidate := string(runes[:keep]) + suffix
		if EstimateTokens(candidate, charsPerToken) <= maxTokens {
			return candidate
		}
		keep--
	}
	if suffix != "" && EstimateTokens(suffix, charsPerToken) <= maxTokens {
		return suffix
	}
	return ""
}
