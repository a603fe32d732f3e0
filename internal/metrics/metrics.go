// Package metrics registers the Prometheus metrics for the retrieval engine:
// embedding generation, cache behavior, and query latency. All registrations
// go through an injectable prometheus.Registerer so tests can use a fresh
// registry without polluting the global default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for embed_requests_total.
const (
	// OutcomeOK is a successful embedding API batch.
	OutcomeOK = "ok"
	// OutcomeRetry is a batch that succeeded after the over-length
	// halve-and-retry.
	OutcomeRetry = "retry"
	// OutcomeFallback is a batch served by the local hash embedding.
	OutcomeFallback = "fallback"
	// OutcomeError is a batch whose API call failed before degrading.
	OutcomeError = "error"
)

// Metrics holds all Prometheus metrics owned by the retrieval engine.
type Metrics struct {
	// EmbedRequestsTotal counts embedding API batches by outcome.
	EmbedRequestsTotal *prometheus.CounterVec

	// EmbedBatchSize records the number of texts per embedding API call.
	EmbedBatchSize prometheus.Histogram

	// CacheHitsTotal counts embedding cache hits.
	CacheHitsTotal prometheus.Counter

	// CacheMissesTotal counts embedding cache misses.
	CacheMissesTotal prometheus.Counter

	// FallbackVectorsTotal counts vectors produced by the local hash
	// embedding instead of the API.
	FallbackVectorsTotal prometheus.Counter

	// QueryDurationSeconds records end-to-end similarity query latency.
	QueryDurationSeconds prometheus.Histogram

	// IndexedChunksTotal counts chunks added to the similarity index.
	IndexedChunksTotal prometheus.Counter
}

// New registers all engine metrics against reg and returns the populated
// Metrics. promauto.With(reg) keeps unit tests hermetic: each call registers
// into the provided registry rather than the global default.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EmbedRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "embed",
			Name:      "requests_total",
			Help:      "Embedding API batches completed, partitioned by outcome.",
		}, []string{"outcome"}),

		EmbedBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recall",
			Subsystem: "embed",
			Name:      "batch_size",
			Help:      "Number of texts per embedding API call.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),

		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Embedding cache hits.",
		}),

		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Embedding cache misses.",
		}),

		FallbackVectorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "embed",
			Name:      "fallback_vectors_total",
			Help:      "Vectors produced by the deterministic local fallback embedding.",
		}),

		QueryDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recall",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end similarity query latency, including query embedding.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),

		IndexedChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Chunks added to the similarity index.",
		}),
	}
}
