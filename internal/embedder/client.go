// Package embedder converts text into dense vector embeddings. Backend
// clients (OpenAI, Azure OpenAI, Ollama, Gemini) talk to their APIs over
// plain HTTP or the official SDK and implement the Client interface; the
// Generator wraps a Client with caching, token budgeting, rate limiting, and
// a deterministic local fallback so the retrieval pipeline keeps working when
// no backend is reachable.
package embedder

import (
	"context"
	"strings"
)

// Client is the interface for a raw embedding backend. Implementations must
// be safe to call from multiple goroutines.
type Client interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// overLengthFragments are lowercase substrings that identify an
// input-too-long error across backends. The OpenAI API reports "maximum
// context length", others phrase it differently.
var overLengthFragments = []string{
	"context length",
	"maximum context",
	"token limit",
	"too long",
	"input is too large",
}

// isOverLength reports whether err is a "context length exceeded"-class
// error, which the Generator recovers from by halving the batch texts and
// retrying once.
func isOverLength(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range overLengthFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
