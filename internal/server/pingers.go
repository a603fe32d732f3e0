package server

import (
	"context"
	"fmt"

	"github.com/54b3r/recall-go/internal/embedder"
)

// EmbeddingPinger probes an embedding backend by requesting a single
// embedding for a short constant text. It satisfies the Pinger interface and
// is used by GET /api/ready. The probe goes straight to the backend client,
// bypassing the cache, so readiness reflects actual reachability.
type EmbeddingPinger struct {
	// client is the embedding backend to probe.
	client embedder.Client
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewEmbeddingPinger constructs an EmbeddingPinger for the given client and
// backend name.
func NewEmbeddingPinger(client embedder.Client, name string) *EmbeddingPinger {
	return &EmbeddingPinger{client: client, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbeddingPinger) Name() string { return p.name }

// Ping requests one embedding from the backend.
// Returns nil if the backend is reachable, or a descriptive error otherwise.
func (p *EmbeddingPinger) Ping(ctx context.Context) error {
	vecs, err := p.client.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed probe failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed probe returned no vector")
	}
	return nil
}
