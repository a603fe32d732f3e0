// Package docstore provides the document-level knowledge store. Each record
// carries two independent embeddings, one for the title and one for the
// content, so searches can target either field or a weighted combination.
// Embeddings are an internal representation: documents returned to callers
// are copies with embeddings stripped.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/recall-go/internal/embedder"
	"github.com/54b3r/recall-go/internal/vector"
)

// Mode selects which embedding field a search scores against.
type Mode string

const (
	// ModeTitle scores against the title embedding only.
	ModeTitle Mode = "title"
	// ModeContent scores against the content embedding only.
	ModeContent Mode = "content"
	// ModeCombined blends title and content scores with the configured weights.
	ModeCombined Mode = "combined"
)

const (
	// defaultThreshold excludes weak matches from search results.
	defaultThreshold = 0.7
	// defaultTitleWeight and defaultContentWeight blend the two field scores
	// in combined mode.
	defaultTitleWeight   = 0.3
	defaultContentWeight = 0.7
)

// Document is a stored knowledge entry as callers see it.
type Document struct {
	// ID uniquely identifies the document. Assigned on add when empty.
	ID string `json:"id"`
	// Title is the short label, embedded independently of the content.
	Title string `json:"title"`
	// Content is the document body.
	Content string `json:"content"`
	// Fields holds free-form metadata (category, source, tags).
	Fields map[string]string `json:"fields,omitempty"`
	// UpdatedAt is when the document was last (re)added.
	UpdatedAt time.Time `json:"updated_at"`
}

// Match is a search hit with its similarity score.
type Match struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// record is the internal representation, embeddings included. Owned
// exclusively by the store.
type record struct {
	doc        Document
	titleVec   []float32
	contentVec []float32
}

// Config holds store-level search settings.
type Config struct {
	// SimilarityThreshold is the minimum score for a search hit.
	SimilarityThreshold float64
	// TitleWeight and ContentWeight blend field scores in combined mode.
	// They default to 0.3 and 0.7 when both are zero.
	TitleWeight   float64
	ContentWeight float64
	// Path is an optional SQLite database path. Empty keeps the store
	// in-memory only.
	Path string
}

// Store is a dual-embedding document store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record

	gen *embedder.Generator
	cfg Config
	log *slog.Logger
	db  *persistence
}

// Open constructs a Store around gen. When cfg.Path is non-empty the store
// is backed by a SQLite database and existing documents are loaded into
// memory.
func Open(gen *embedder.Generator, cfg Config, log *slog.Logger) (*Store, error) {
	if gen == nil {
		return nil, fmt.Errorf("docstore: generator must not be nil")
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = defaultThreshold
	}
	if cfg.TitleWeight == 0 && cfg.ContentWeight == 0 {
		cfg.TitleWeight = defaultTitleWeight
		cfg.ContentWeight = defaultContentWeight
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		records: make(map[string]*record),
		gen:     gen,
		cfg:     cfg,
		log:     log,
	}
	if cfg.Path != "" {
		db, err := openPersistence(cfg.Path)
		if err != nil {
			return nil, err
		}
		s.db = db
		recs, err := db.loadAll()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		for _, r := range recs {
			s.records[r.doc.ID] = r
		}
		log.Debug("docstore: loaded documents",
			slog.String("path", cfg.Path),
			slog.Int("count", len(recs)),
		)
	}
	return s, nil
}

// Close releases the backing database, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Add computes both embeddings for doc and stores it, overwriting any
// existing record with the same ID. A missing ID is assigned a fresh UUID.
// The resolved ID is returned.
func (s *Store) Add(ctx context.Context, doc Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.UpdatedAt = time.Now()

	vecs, err := s.gen.GenerateBatch(ctx, []string{doc.Title, doc.Content})
	if err != nil {
		return "", fmt.Errorf("docstore: embedding %q: %w", doc.ID, err)
	}
	r := &record{doc: cloneDocument(doc), titleVec: vecs[0], contentVec: vecs[1]}

	s.mu.Lock()
	s.records[doc.ID] = r
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.save(r); err != nil {
			return doc.ID, err
		}
	}
	return doc.ID, nil
}

// AddDocuments adds docs with partial-failure semantics: a document whose
// embedding or persistence fails is logged and skipped, the rest continue.
// The IDs of successfully stored documents are returned.
func (s *Store) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := s.Add(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return ids, ctx.Err()
			}
			s.log.Warn("docstore: skipping document",
				slog.String("id", doc.ID),
				slog.String("title", doc.Title),
				slog.String("error", err.Error()),
			)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove deletes the document with the given ID and reports whether a
// record existed.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	_, ok := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()

	if ok && s.db != nil {
		if err := s.db.remove(id); err != nil {
			return true, err
		}
	}
	return ok, nil
}

// Get returns a copy of the document with the given ID, embeddings stripped.
func (s *Store) Get(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Document{}, false
	}
	return cloneDocument(r.doc), true
}

// Export returns copies of every stored document, embeddings stripped,
// ordered by ID for stable output.
func (s *Store) Export() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneDocument(r.doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search embeds query and returns documents scoring at or above the store's
// similarity threshold under the given mode, best first. A nil filter admits
// every document; a non-nil filter is applied before scoring so filtered
// records cost nothing to score.
func (s *Store) Search(ctx context.Context, query string, mode Mode, limit int, filter func(Document) bool) ([]Match, error) {
	vec, err := s.gen.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("docstore: embedding query: %w", err)
	}
	return s.SearchByEmbedding(vec, mode, limit, filter)
}

// SearchByEmbedding is the vector variant of Search for callers that already
// hold a query embedding.
func (s *Store) SearchByEmbedding(queryVec []float32, mode Mode, limit int, filter func(Document) bool) ([]Match, error) {
	switch mode {
	case ModeTitle, ModeContent, ModeCombined:
	case "":
		mode = ModeCombined
	default:
		return nil, fmt.Errorf("docstore: unknown search mode %q", mode)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, r := range s.records {
		if filter != nil && !filter(cloneDocument(r.doc)) {
			continue
		}
		score, err := s.score(queryVec, r, mode)
		if err != nil {
			return nil, fmt.Errorf("docstore: scoring %q: %w", r.doc.ID, err)
		}
		if score < s.cfg.SimilarityThreshold {
			continue
		}
		matches = append(matches, Match{Document: cloneDocument(r.doc), Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Document.ID < matches[j].Document.ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// score computes the similarity of queryVec against r under mode. A record
// missing the needed embedding scores -1 so it is excluded by any positive
// threshold.
func (s *Store) score(queryVec []float32, r *record, mode Mode) (float64, error) {
	fieldScore := func(v []float32) (float64, error) {
		if len(v) == 0 {
			return -1, nil
		}
		return vector.Cosine(queryVec, v)
	}

	switch mode {
	case ModeTitle:
		return fieldScore(r.titleVec)
	case ModeContent:
		return fieldScore(r.contentVec)
	default:
		ts, err := fieldScore(r.titleVec)
		if err != nil {
			return 0, err
		}
		cs, err := fieldScore(r.contentVec)
		if err != nil {
			return 0, err
		}
		if ts < 0 || cs < 0 {
			return -1, nil
		}
		return ts*s.cfg.TitleWeight + cs*s.cfg.ContentWeight, nil
	}
}

// cloneDocument deep-copies doc so callers cannot mutate stored state.
func cloneDocument(doc Document) Document {
	if doc.Fields != nil {
		fields := make(map[string]string, len(doc.Fields))
		for k, v := range doc.Fields {
			fields[k] = v
		}
		doc.Fields = fields
	}
	return doc
}
