// Package index implements the in-memory similarity index: it holds
// embedded records and answers nearest-neighbor queries by exhaustive cosine
// scan — O(n) per query, no ANN structure. Results are filtered by a minimum
// score, sorted descending (stable, so insertion order breaks ties), and
// truncated to top-k.
package index

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"

	"github.com/54b3r/recall-go/internal/vector"
)

// Record is one indexed unit of content with its embedding. Records without
// an embedding are never returned by queries with a non-negative minScore.
type Record struct {
	// Content is the record's text.
	Content string
	// Metadata holds arbitrary key-value pairs (source, document id, etc.).
	Metadata map[string]string
	// Embedding is the record's dense vector; nil when generation failed.
	Embedding []float32
}

// Result is one scored query hit. Ephemeral, produced per query.
type Result struct {
	// Content is the matching record's text.
	Content string
	// Metadata is the matching record's metadata.
	Metadata map[string]string
	// Score is the cosine similarity in [0, 1].
	Score float64
}

// Index is an exhaustive-scan similarity index.
//
// Callers must not add or remove records while a Query is scoring: the
// record set is assumed stable for the duration of each call. This is a
// documented precondition, not enforced with locks.
type Index struct {
	// records holds all indexed content in insertion order.
	records []Record
	// log is the structured logger.
	log *slog.Logger
}

// New constructs an empty Index. log may be nil.
func New(log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{log: log}
}

// Add appends records to the index.
func (ix *Index) Add(records ...Record) {
	ix.records = append(ix.records, records...)
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	return len(ix.records)
}

// Reset removes all records.
func (ix *Index) Reset() {
	ix.records = nil
}

// Query scores queryVec against every record and returns up to k results
// with score >= minScore, sorted by descending score. Records lacking an
// embedding score as -1 and are excluded by any non-negative minScore. A
// dimension mismatch between queryVec and any record is a hard error — it
// indicates mixed embedding models and must not be silently masked. An empty
// index or no matches above threshold yields an empty slice, not an error.
func (ix *Index) Query(queryVec []float32, k int, minScore float64) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: k must be positive, got %d", k)
	}

	results := make([]Result, 0, len(ix.records))
	for i := range ix.records {
		rec := &ix.records[i]

		score := -1.0
		if rec.Embedding != nil {
			s, err := vector.Cosine(queryVec, rec.Embedding)
			if err != nil {
				return nil, fmt.Errorf("index: scoring record %d: %w", i, err)
			}
			score = s
		}

		if score < minScore {
			continue
		}
		// Metadata is copied so callers mutating a result cannot corrupt
		// the stored record.
		results = append(results, Result{
			Content:  rec.Content,
			Metadata: maps.Clone(rec.Metadata),
			Score:    score,
		})
	}

	// Stable sort preserves insertion order among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
