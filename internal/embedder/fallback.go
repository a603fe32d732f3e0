package embedder

import (
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/54b3r/recall-go/internal/vector"
)

// neighborSpread is how many positions on each side of a token's hash slot
// receive decaying weight. Spreading reduces the impact of exact hash
// collisions between unrelated tokens.
const neighborSpread = 3

// FallbackEmbedding produces a deterministic vector from text alone, used
// when no embedding backend is configured or the API is failing. The rest of
// the pipeline only assumes "some fixed-dimension vector", so fallback
// vectors keep retrieval working at reduced quality. Dimensions should match
// the real model's output so real and fallback vectors stay comparable in
// shape.
//
// The function is pure: the same text always yields the same vector. The
// result is L2-normalized; text with no tokens yields the zero vector.
func FallbackEmbedding(text string, dimensions int) []float32 {
	if dimensions <= 0 {
		return nil
	}
	v := make([]float32, dimensions)

	for _, token := range uniqueTokens(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		pos := int(h.Sum32() % uint32(dimensions)) //nolint:gosec // dimensions > 0

		v[pos] = 1.0
		for i := 1; i <= neighborSpread; i++ {
			w := float32(0.5) / float32(i)
			v[(pos+i)%dimensions] += w
			v[((pos-i)%dimensions+dimensions)%dimensions] += w
		}
	}

	vector.Normalize(v)
	return v
}

// uniqueTokens lower-cases text, splits on non-word boundaries, and returns
// the distinct tokens in first-seen order.
func uniqueTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}
