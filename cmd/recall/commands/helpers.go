package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/recall-go/internal/chunker"
	"github.com/54b3r/recall-go/internal/dedup"
	"github.com/54b3r/recall-go/internal/docstore"
	"github.com/54b3r/recall-go/internal/embedcache"
	"github.com/54b3r/recall-go/internal/embedder"
	"github.com/54b3r/recall-go/internal/engine"
	"github.com/54b3r/recall-go/internal/metrics"
	"github.com/54b3r/recall-go/internal/ratelimit"
)

// buildGenerator wires the full embedding stack from the environment:
// backend client, two-tier cache, sliding-window rate limiter, and metrics.
// The backend client is returned alongside the generator (nil in
// fallback-only mode) so callers can probe it for readiness. met may be nil
// for commands that do not expose /metrics.
func buildGenerator(ctx context.Context, log *slog.Logger, met *metrics.Metrics) (*embedder.Generator, embedder.Client, error) {
	embedder.Validate(log)

	client, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedding backend: %w", err)
	}

	cacheDir := os.Getenv("RECALL_CACHE_DIR")
	if cacheDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cacheDir = filepath.Join(home, ".recall", "cache")
		}
	}
	cache := embedcache.New(&embedcache.Config{
		Dir:        cacheDir,
		MaxEntries: getEnvInt("RECALL_CACHE_MAX_ENTRIES", 0),
		Logger:     log,
	})

	limiter := ratelimit.NewSlidingWindow(getEnvInt("RECALL_RATE_LIMIT", 0))

	backend := embedder.ResolveBackend()
	dims := getEnvInt("EMBEDDING_DIMENSIONS", 0)
	if dims == 0 {
		dims = embedder.DefaultDimensions(backend)
	}
	log.Info("embedding stack ready",
		slog.String("backend", backend),
		slog.Int("dimensions", dims),
		slog.String("cache_dir", cacheDir),
	)

	return embedder.NewGenerator(client, cache, limiter, &embedder.GeneratorConfig{
		Dimensions: dims,
	}, log, met), client, nil
}

// buildEngine constructs the retrieval engine over gen with chunking and
// query defaults from the environment.
func buildEngine(gen *embedder.Generator, log *slog.Logger, met *metrics.Metrics) (*engine.Engine, error) {
	return engine.New(gen, &engine.Config{
		Chunking: chunkOptionsFromEnv(),
		TopK:     getEnvInt("RECALL_TOP_K", 0),
		MinScore: getEnvFloat("RECALL_MIN_SCORE", 0),
	}, log, met)
}

// buildKnowledgeStore opens the persistent knowledge base and its duplicate
// detector. RECALL_KNOWLEDGE_DB overrides the default path
// (~/.recall/knowledge.db); set to "disabled" to keep the store in memory.
func buildKnowledgeStore(gen *embedder.Generator, log *slog.Logger) (*docstore.Store, *dedup.Detector, error) {
	dbPath := os.Getenv("RECALL_KNOWLEDGE_DB")
	switch dbPath {
	case "disabled":
		dbPath = ""
	case "":
		p, err := docstore.DefaultDBPath()
		if err != nil {
			log.Warn("knowledge: could not resolve default DB path, using in-memory store", slog.Any("error", err))
		} else {
			dbPath = p
		}
	}

	store, err := docstore.Open(gen, docstore.Config{
		Path:                dbPath,
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0),
		TitleWeight:         getEnvFloat("TITLE_WEIGHT", 0),
		ContentWeight:       getEnvFloat("CONTENT_WEIGHT", 0),
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}

	detector, err := dedup.New(gen, getEnvFloat("DEDUP_THRESHOLD", 0), log)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, detector, nil
}

// chunkOptionsFromEnv reads the CHUNK_* environment variables.
func chunkOptionsFromEnv() chunker.Options {
	return chunker.Options{
		Strategy:             chunker.Strategy(os.Getenv("CHUNK_STRATEGY")),
		ChunkSize:            getEnvInt("CHUNK_SIZE", 0),
		Overlap:              getEnvInt("CHUNK_OVERLAP", 0),
		MaxChunksPerDocument: getEnvInt("CHUNK_MAX_PER_DOC", 0),
	}
}

// newMetrics builds the engine metrics against a fresh registry and returns
// both, for commands that expose /metrics.
func newMetrics() (*metrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return metrics.New(reg), reg
}

// getEnvOrDefault reads a string env var, returning fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt reads an integer env var, returning fallback when unset or
// malformed.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat reads a float env var, returning fallback when unset or
// malformed.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
