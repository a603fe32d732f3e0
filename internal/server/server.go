// Package server implements the HTTP facade over the retrieval engine and
// the knowledge store. The server is started by the `recall serve` CLI
// command and exposes query, index, and knowledge-search endpoints plus
// health, readiness, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/recall-go/internal/chunker"
	"github.com/54b3r/recall-go/internal/docstore"
	"github.com/54b3r/recall-go/internal/engine"
	"github.com/54b3r/recall-go/internal/logging"
)

// New constructs a Server from the provided engine, optional knowledge
// store, and config.
func New(eng *engine.Engine, store *docstore.Store, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout covers embedding calls made while handling a request.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		eng:     eng,
		store:   store,
		cfg:     cfg,
		log:     cfg.Logger,
		met:     newServerMetrics(cfg.Registry),
		pingers: cfg.Pingers,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger, s.met.httpRateLimitedTotal)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", s.instrument("query", rl.middleware(http.HandlerFunc(s.handleQuery))))
	mux.Handle("POST /api/index", s.instrument("index", rl.middleware(http.HandlerFunc(s.handleIndex))))
	mux.Handle("POST /api/knowledge/search", s.instrument("knowledge_search", rl.middleware(http.HandlerFunc(s.handleKnowledgeSearch))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		fmt.Printf("recall server listening on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. Data-availability conditions (empty
// index, nothing above the threshold) return an empty result list, not an
// error; only invalid requests fail.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.met.queryRequestsTotal.WithLabelValues("bad_request").Inc()
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		s.met.queryRequestsTotal.WithLabelValues("bad_request").Inc()
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	results, err := s.eng.Query(r.Context(), req.Query, req.K, req.MinScore)
	if err != nil {
		s.met.queryRequestsTotal.WithLabelValues("error").Inc()
		log.Error("query failed", slog.Any("error", err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	s.met.queryRequestsTotal.WithLabelValues("ok").Inc()

	resp := queryResponse{Results: make([]queryResult, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, queryResult{
			Content:  res.Content,
			Metadata: res.Metadata,
			Score:    res.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp, log)
}

// handleIndex handles POST /api/index. Documents are indexed with
// partial-failure semantics; the response reports how many went in.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Documents) == 0 {
		http.Error(w, "documents are required", http.StatusBadRequest)
		return
	}

	docs := make([]chunker.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, chunker.Document{
			ID:      d.ID,
			Title:   d.Title,
			Content: d.Content,
			Source:  d.Source,
		})
	}

	chunks, err := s.eng.IndexDocuments(r.Context(), docs)
	if err != nil {
		log.Error("index failed", slog.Any("error", err))
		http.Error(w, "index failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{Documents: len(docs), Chunks: chunks}, log)
}

// handleKnowledgeSearch handles POST /api/knowledge/search against the
// knowledge store. Returns 503 when the store is not configured.
func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.store == nil {
		http.Error(w, "knowledge store not configured", http.StatusServiceUnavailable)
		return
	}

	var req knowledgeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	matches, err := s.store.Search(r.Context(), req.Query, docstore.Mode(req.Mode), req.Limit, nil)
	if err != nil {
		log.Error("knowledge search failed", slog.Any("error", err))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []docstore.Match{}
	}
	writeJSON(w, http.StatusOK, knowledgeSearchResponse{Matches: matches}, log)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logging.FromContext(r.Context()))
}

// writeJSON encodes v to w with the given status.
func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}
