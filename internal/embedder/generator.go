package embedder

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/recall-go/internal/budget"
	"github.com/54b3r/recall-go/internal/embedcache"
	"github.com/54b3r/recall-go/internal/metrics"
	"github.com/54b3r/recall-go/internal/ratelimit"
)

// Limiter delays the caller until one more outbound API request may be
// issued. Satisfied by ratelimit.SlidingWindow.
type Limiter interface {
	Acquire(ctx context.Context) error
}

const (
	// defaultDimensions matches text-embedding-3-small; fallback vectors use
	// the same dimension so they stay comparable in shape to real ones.
	defaultDimensions = 1536

	// defaultMaxBatchItems bounds the number of texts per API call.
	defaultMaxBatchItems = 100
)

// GeneratorConfig tunes batching and degradation for a Generator.
type GeneratorConfig struct {
	// Dimensions is the embedding vector length, used for fallback vectors.
	// Defaults to 1536.
	Dimensions int
	// MaxTextTokens is the per-text token budget; longer texts are
	// truncated at a sentence boundary. Defaults to budget.DefaultMaxTextTokens.
	MaxTextTokens int
	// MaxBatchItems bounds the number of texts per API call. Defaults to 100.
	MaxBatchItems int
	// MaxBatchTokens bounds the combined token estimate per API call, with
	// a safety margin below the hard API limit. Defaults to
	// budget.DefaultMaxBatchTokens.
	MaxBatchTokens int
}

// pending is one distinct cache-miss text awaiting generation, with the
// output slots its vector fans out to.
type pending struct {
	text  string
	slots []int
}

// Generator turns batches of text into vectors: it consults the cache, packs
// cache misses into token-budgeted batches, calls the backend under the rate
// limiter, retries once with halved inputs on over-length errors, and falls
// back to the deterministic local hash embedding when the backend is absent
// or failing. Availability problems never surface as errors — callers always
// receive one vector per input text.
type Generator struct {
	// client is the embedding backend; nil means fallback-only operation.
	client Client
	// cache is the two-tier embedding cache.
	cache *embedcache.Cache
	// limiter paces outbound API calls.
	limiter Limiter
	// cfg holds the resolved configuration.
	cfg GeneratorConfig
	// log is the structured logger.
	log *slog.Logger
	// met holds the engine's Prometheus metrics.
	met *metrics.Metrics
}

// NewGenerator constructs a Generator. client may be nil, in which case every
// vector comes from the local fallback embedding. limiter may be nil; a
// default sliding-window limiter is used. met may be nil; a private registry
// is created so the counters are always safe to touch.
func NewGenerator(client Client, cache *embedcache.Cache, limiter Limiter, cfg *GeneratorConfig, log *slog.Logger, met *metrics.Metrics) *Generator {
	if cfg == nil {
		cfg = &GeneratorConfig{}
	}
	resolved := *cfg
	if resolved.Dimensions <= 0 {
		resolved.Dimensions = defaultDimensions
	}
	if resolved.MaxTextTokens <= 0 {
		resolved.MaxTextTokens = budget.DefaultMaxTextTokens
	}
	if resolved.MaxBatchItems <= 0 {
		resolved.MaxBatchItems = defaultMaxBatchItems
	}
	if resolved.MaxBatchTokens <= 0 {
		resolved.MaxBatchTokens = budget.DefaultMaxBatchTokens
	}
	if cache == nil {
		cache = embedcache.New(nil)
	}
	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow(0)
	}
	if log == nil {
		log = slog.Default()
	}
	if met == nil {
		met = metrics.New(prometheus.NewRegistry())
	}
	return &Generator{
		client:  client,
		cache:   cache,
		limiter: limiter,
		cfg:     resolved,
		log:     log,
		met:     met,
	}
}

// Dimensions returns the configured embedding vector length.
func (g *Generator) Dimensions() int {
	return g.cfg.Dimensions
}

// Generate embeds a single text. See GenerateBatch for semantics.
func (g *Generator) Generate(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GenerateBatch embeds texts, returning one vector per input in input order.
// The only error conditions are programming-contract violations (currently
// just context cancellation propagated from the rate limiter); backend
// failures degrade to fallback vectors per text.
func (g *Generator) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Partition into cached and missing. Duplicate inputs collapse onto the
	// same slot list so each distinct text is generated at most once.
	var missing []pending
	missingByKey := make(map[string]int)

	for i, text := range texts {
		if vec, ok := g.cache.Get(text); ok {
			g.met.CacheHitsTotal.Inc()
			out[i] = vec
			continue
		}
		g.met.CacheMissesTotal.Inc()

		key := embedcache.Key(text)
		if j, ok := missingByKey[key]; ok {
			missing[j].slots = append(missing[j].slots, i)
			continue
		}
		missingByKey[key] = len(missing)
		// Oversized texts are truncated up front; the truncated form is what
		// gets embedded and cached.
		missing = append(missing, pending{
			text:  budget.Truncate(text, g.cfg.MaxTextTokens),
			slots: []int{i},
		})
	}

	if len(missing) == 0 {
		return out, nil
	}

	// Pack into batches bounded by item count and token budget.
	var batches [][]pending
	var cur []pending
	curTokens := 0
	for _, p := range missing {
		t := budget.Estimate(p.text)
		if len(cur) > 0 && (len(cur) >= g.cfg.MaxBatchItems || curTokens+t > g.cfg.MaxBatchTokens) {
			batches = append(batches, cur)
			cur = nil
			curTokens = 0
		}
		cur = append(cur, p)
		curTokens += t
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}

	// Batches run sequentially to respect the shared rate limiter.
	for _, batch := range batches {
		if err := g.embedBatch(ctx, batch, out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// embedBatch embeds one packed batch, distributing vectors into out and
// caching successes. Backend failures degrade to fallback vectors; only
// context cancellation is returned as an error.
func (g *Generator) embedBatch(ctx context.Context, batch []pending, out [][]float32) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.text
	}
	g.met.EmbedBatchSize.Observe(float64(len(texts)))

	if g.client == nil {
		g.fallbackFill(batch, out)
		g.met.EmbedRequestsTotal.WithLabelValues(metrics.OutcomeFallback).Inc()
		return nil
	}

	if err := g.limiter.Acquire(ctx); err != nil {
		return err
	}

	vecs, err := g.client.Embed(ctx, texts)
	if err == nil {
		g.met.EmbedRequestsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
		g.distribute(batch, texts, vecs, out)
		return nil
	}

	if isOverLength(err) {
		// Halve every text in the batch at a sentence boundary and retry
		// once. On success the truncated text becomes the cache key so a
		// later call for the same input hits the cache.
		g.log.Warn("embedder: input over length, halving batch and retrying",
			slog.Int("batch_size", len(texts)), slog.String("error", err.Error()))
		halved := make([]string, len(texts))
		for i, t := range texts {
			halved[i] = budget.Halve(t)
		}
		if ctxErr := g.limiter.Acquire(ctx); ctxErr != nil {
			return ctxErr
		}
		vecs, retryErr := g.client.Embed(ctx, halved)
		if retryErr == nil {
			g.met.EmbedRequestsTotal.WithLabelValues(metrics.OutcomeRetry).Inc()
			g.distribute(batch, halved, vecs, out)
			return nil
		}
		err = retryErr
	}

	// Transient or persistent API failure: degrade to the local fallback for
	// this batch and carry on. Fallback vectors are lower fidelity and are
	// never cached, so a later successful call can still populate the cache.
	g.met.EmbedRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	g.log.Warn("embedder: API call failed, using fallback embeddings",
		slog.Int("batch_size", len(texts)), slog.String("error", err.Error()))
	g.fallbackFill(batch, out)
	return nil
}

// distribute writes vecs into every slot of each batch item and caches each
// (text, vector) pair. texts holds the exact strings that were embedded
// (possibly halved), which is what gets cached.
func (g *Generator) distribute(batch []pending, texts []string, vecs [][]float32, out [][]float32) {
	for i, p := range batch {
		for _, slot := range p.slots {
			out[slot] = vecs[i]
		}
		g.cache.Put(texts[i], vecs[i])
	}
}

// fallbackFill fills every slot of each batch item with the deterministic
// local embedding. Fallback vectors are not cached.
func (g *Generator) fallbackFill(batch []pending, out [][]float32) {
	for _, p := range batch {
		vec := FallbackEmbedding(p.text, g.cfg.Dimensions)
		g.met.FallbackVectorsTotal.Inc()
		for _, slot := range p.slots {
			out[slot] = vec
		}
	}
}
