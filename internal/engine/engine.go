// Package engine wires the retrieval pipeline together: documents are
// chunked, embedded through the cached and rate-limited generator, and stored
// in the similarity index; queries are embedded and scored against every
// record. Each Engine owns its own cache, rate-limiter window, and index, so
// tests and embedding consumers construct isolated instances instead of
// sharing process-wide singletons.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/54b3r/recall-go/internal/chunker"
	"github.com/54b3r/recall-go/internal/embedder"
	"github.com/54b3r/recall-go/internal/index"
	"github.com/54b3r/recall-go/internal/metrics"
)

const (
	// defaultTopK is the result count when a caller passes k <= 0.
	defaultTopK = 5
	// defaultMinScore admits everything with any positive similarity.
	defaultMinScore = 0.0
)

// Config holds the engine-level settings.
type Config struct {
	// Chunking controls document segmentation.
	Chunking chunker.Options
	// TopK is the default result count for Query when the caller passes 0.
	TopK int
	// MinScore is the default minimum similarity for Query results.
	MinScore float64
}

// Engine is the retrieval pipeline facade. Methods are safe for concurrent
// use: the index itself is not concurrency-safe, so the engine serializes
// mutation against queries.
type Engine struct {
	// gen embeds text through cache, rate limiter, and backend.
	gen *embedder.Generator
	// mu guards ix. Embedding happens outside the lock; only the index
	// mutation and scan run under it.
	mu sync.RWMutex
	// ix is the similarity index.
	ix *index.Index
	// cfg holds the resolved configuration.
	cfg Config
	// log is the structured logger.
	log *slog.Logger
	// met holds the engine's Prometheus metrics.
	met *metrics.Metrics
}

// New constructs an Engine around gen. met may be nil when metrics are not
// being scraped.
func New(gen *embedder.Generator, cfg *Config, log *slog.Logger, met *metrics.Metrics) (*Engine, error) {
	if gen == nil {
		return nil, fmt.Errorf("engine: generator must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	resolved := *cfg
	if resolved.TopK <= 0 {
		resolved.TopK = defaultTopK
	}
	if resolved.MinScore < 0 {
		resolved.MinScore = defaultMinScore
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		gen: gen,
		ix:  index.New(log),
		cfg: resolved,
		log: log,
		met: met,
	}, nil
}

// Generator exposes the engine's embedding generator for collaborators that
// embed text outside the index path (dedup, document store).
func (e *Engine) Generator() *embedder.Generator {
	return e.gen
}

// Len returns the number of indexed chunks.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ix.Len()
}

// Reset drops every indexed chunk.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ix.Reset()
}

// IndexDocument chunks doc, embeds every chunk, and adds the results to the
// index. It returns the number of chunks indexed. An empty document indexes
// zero chunks and is not an error.
func (e *Engine) IndexDocument(ctx context.Context, doc chunker.Document) (int, error) {
	chunks := chunker.Split(doc, e.cfg.Chunking)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := e.gen.GenerateBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("engine: embedding %q: %w", doc.ID, err)
	}

	records := make([]index.Record, len(chunks))
	for i, c := range chunks {
		c.Embedding = vecs[i]
		records[i] = index.Record{
			Content:   c.Content,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"source":       c.Metadata.Source,
				"document_id":  c.Metadata.DocumentID,
				"title":        c.Metadata.Title,
				"section":      c.Metadata.Section,
				"chunk_index":  fmt.Sprintf("%d", c.Metadata.ChunkIndex),
				"total_chunks": fmt.Sprintf("%d", c.Metadata.TotalChunks),
			},
		}
	}
	e.mu.Lock()
	e.ix.Add(records...)
	e.mu.Unlock()
	if e.met != nil {
		e.met.IndexedChunksTotal.Add(float64(len(records)))
	}

	e.log.Debug("engine: indexed document",
		slog.String("document_id", doc.ID),
		slog.Int("chunks", len(records)),
	)
	return len(records), nil
}

// IndexDocuments indexes docs one at a time with partial-failure semantics:
// a document that fails is logged and skipped, the rest continue. The total
// chunk count across successful documents is returned.
func (e *Engine) IndexDocuments(ctx context.Context, docs []chunker.Document) (int, error) {
	total := 0
	for _, doc := range docs {
		n, err := e.IndexDocument(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			e.log.Warn("engine: skipping document",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += n
	}
	return total, nil
}

// Query embeds the query string and returns up to k results with score >=
// minScore, ranked by descending cosine similarity. k <= 0 and minScore < 0
// fall back to the configured defaults. Data-availability conditions (empty
// index, nothing above threshold) yield an empty slice, not an error.
func (e *Engine) Query(ctx context.Context, query string, k int, minScore float64) ([]index.Result, error) {
	start := time.Now()

	vec, err := e.gen.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine: embedding query: %w", err)
	}

	results, err := e.QueryEmbedding(vec, k, minScore)
	if err != nil {
		return nil, err
	}

	if e.met != nil {
		e.met.QueryDurationSeconds.Observe(time.Since(start).Seconds())
	}
	return results, nil
}

// QueryEmbedding is the vector variant of Query for callers that already
// hold a query embedding.
func (e *Engine) QueryEmbedding(queryVec []float32, k int, minScore float64) ([]index.Result, error) {
	if k <= 0 {
		k = e.cfg.TopK
	}
	if minScore < 0 {
		minScore = e.cfg.MinScore
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ix.Query(queryVec, k, minScore)
}
