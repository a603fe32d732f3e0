// Package budget provides token budget estimation and text truncation for the
// embedding pipeline. Because the engine supports multiple embedding backends
// with different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose and code). This
// deliberately under-estimates token counts to leave headroom for
// model-specific overhead.
package budget

import "strings"

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English and code; using 3
	// would be more aggressive but risks overflowing the API's input limit.
	charsPerToken = 4

	// DefaultMaxTextTokens is the default per-text token budget. Conservative
	// enough to fit within the 8191-token input limit of the common OpenAI
	// embedding models while leaving room for tokenizer variance.
	DefaultMaxTextTokens = 8000

	// DefaultMaxBatchTokens is the default combined token budget for one
	// embedding API call, with a safety margin below typical hard limits.
	DefaultMaxBatchTokens = 80000

	// sentenceSearchWindow bounds how far back from a truncation point the
	// sentence-boundary search looks before giving up and cutting mid-word.
	sentenceSearchWindow = 500
)

// sentenceEnders are the byte values that terminate a sentence when followed
// by whitespace or end-of-text.
const sentenceEnders = ".!?"

// Estimate returns a rough token count for s using the character heuristic.
// Non-empty strings always estimate to at least 1 token.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// MaxChars converts a token budget into the equivalent character budget.
func MaxChars(tokens int) int {
	return tokens * charsPerToken
}

// Truncate shortens s so that Estimate(result) <= maxTokens, preferring to
// cut at the last sentence boundary before the limit. If no sentence boundary
// exists within sentenceSearchWindow characters of the limit the text is cut
// mid-word. Text already within budget is returned unchanged.
func Truncate(s string, maxTokens int) string {
	limit := MaxChars(maxTokens)
	if len(s) <= limit {
		return s
	}
	return cutAt(s, limit)
}

// Halve returns roughly the first half of s, cut at the sentence boundary
// nearest the midpoint when one exists. Used by the over-length retry path.
func Halve(s string) string {
	return cutAt(s, len(s)/2)
}

// cutAt cuts s at or before limit, preferring the last sentence boundary in
// the trailing sentenceSearchWindow characters. The result is trimmed of
// trailing whitespace.
func cutAt(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if limit >= len(s) {
		return s
	}

	floor := limit - sentenceSearchWindow
	if floor < 0 {
		floor = 0
	}
	for i := limit - 1; i > floor; i-- {
		if !strings.ContainsRune(sentenceEnders, rune(s[i])) {
			continue
		}
		// A sentence ender counts only when followed by whitespace, so
		// "3.14" or "v1.2" do not register as boundaries.
		if i+1 < len(s) && !isSpace(s[i+1]) {
			continue
		}
		return strings.TrimRight(s[:i+1], " \t\n")
	}

	return strings.TrimRight(s[:limit], " \t\n")
}

// isSpace reports whether b is an ASCII whitespace byte.
func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
