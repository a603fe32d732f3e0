// Package dedup detects near-duplicate knowledge entries by comparing
// problem and solution texts independently with embedding similarity. An
// entry only counts as a duplicate when both fields exceed the threshold, so
// a known problem with a new solution is still accepted.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/recall-go/internal/embedder"
	"github.com/54b3r/recall-go/internal/vector"
)

// defaultThreshold is the similarity above which a field counts as matching.
const defaultThreshold = 0.85

// Item is a problem/solution pair under duplicate consideration.
type Item struct {
	// ID identifies the existing entry. Informational only.
	ID string
	// Problem describes the issue the entry addresses.
	Problem string
	// Solution describes the fix.
	Solution string
}

// Detector classifies new items against an existing set.
type Detector struct {
	gen       *embedder.Generator
	threshold float64
	log       *slog.Logger
}

// New constructs a Detector. threshold <= 0 uses the default of 0.85.
func New(gen *embedder.Generator, threshold float64, log *slog.Logger) (*Detector, error) {
	if gen == nil {
		return nil, fmt.Errorf("dedup: generator must not be nil")
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{gen: gen, threshold: threshold, log: log}, nil
}

// IsDuplicate reports whether candidate duplicates any item in existing.
// When it does, the matched item is returned alongside. A comparison that
// fails (dimension mismatch against a stale entry) is logged and treated as
// not-a-duplicate for that entry, so bad stored data never blocks new
// knowledge.
func (d *Detector) IsDuplicate(ctx context.Context, candidate Item, existing []Item) (bool, *Item, error) {
	if len(existing) == 0 {
		return false, nil, nil
	}

	// Batch every text through one call so the cache and rate limiter see
	// a single window: candidate problem+solution first, then each
	// existing pair.
	texts := make([]string, 0, 2+2*len(existing))
	texts = append(texts, candidate.Problem, candidate.Solution)
	for _, it := range existing {
		texts = append(texts, it.Problem, it.Solution)
	}
	vecs, err := d.gen.GenerateBatch(ctx, texts)
	if err != nil {
		return false, nil, fmt.Errorf("dedup: embedding: %w", err)
	}
	probVec, solVec := vecs[0], vecs[1]

	for i, it := range existing {
		probScore, perr := vector.Cosine(probVec, vecs[2+2*i])
		solScore, serr := vector.Cosine(solVec, vecs[3+2*i])
		if perr != nil || serr != nil {
			d.log.Warn("dedup: comparison failed, treating as not duplicate",
				slog.String("existing_id", it.ID),
				slog.Any("problem_error", perr),
				slog.Any("solution_error", serr),
			)
			continue
		}
		if probScore > d.threshold && solScore > d.threshold {
			d.log.Debug("dedup: duplicate found",
				slog.String("existing_id", it.ID),
				slog.Float64("problem_score", probScore),
				slog.Float64("solution_score", solScore),
			)
			match := it
			return true, &match, nil
		}
	}
	return false, nil, nil
}
