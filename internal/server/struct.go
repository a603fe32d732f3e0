package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/recall-go/internal/docstore"
	"github.com/54b3r/recall-go/internal/engine"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// Registry receives the server's Prometheus metrics and backs GET /metrics.
	// If nil a private registry is created.
	Registry *prometheus.Registry
}

// Server exposes the retrieval engine and knowledge store over HTTP.
type Server struct {
	// eng answers /api/query and /api/index.
	eng *engine.Engine
	// store answers /api/knowledge/search. May be nil when the knowledge
	// base is not configured; the route then returns 503.
	store *docstore.Store
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// met holds the server's Prometheus metrics.
	met *serverMetrics
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the natural-language query to embed and score.
	Query string `json:"query"`
	// K caps the result count. Zero uses the engine default.
	K int `json:"k,omitempty"`
	// MinScore excludes results below this similarity. Negative uses the
	// engine default.
	MinScore float64 `json:"minScore,omitempty"`
}

// queryResult is one entry in the /api/query response.
type queryResult struct {
	// Content is the chunk text.
	Content string `json:"content"`
	// Metadata carries the chunk provenance (source, document_id, section).
	Metadata map[string]string `json:"metadata,omitempty"`
	// Score is the cosine similarity against the query.
	Score float64 `json:"score"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	Results []queryResult `json:"results"`
}

// indexRequest is the JSON body for POST /api/index.
type indexRequest struct {
	Documents []indexDocument `json:"documents"`
}

// indexDocument is one document in an /api/index request.
type indexDocument struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// indexResponse is the JSON response for POST /api/index.
type indexResponse struct {
	// Documents is the number of documents accepted.
	Documents int `json:"documents"`
	// Chunks is the total chunk count indexed across them.
	Chunks int `json:"chunks"`
}

// knowledgeSearchRequest is the JSON body for POST /api/knowledge/search.
type knowledgeSearchRequest struct {
	Query string `json:"query"`
	// Mode is "title", "content", or "combined" (default).
	Mode string `json:"mode,omitempty"`
	// Limit caps the result count. Zero means unlimited.
	Limit int `json:"limit,omitempty"`
}

// knowledgeSearchResponse is the JSON response for POST /api/knowledge/search.
type knowledgeSearchResponse struct {
	Matches []docstore.Match `json:"matches"`
}
