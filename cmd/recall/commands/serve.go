package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/recall-go/internal/embedder"
	"github.com/54b3r/recall-go/internal/ingestion"
	"github.com/54b3r/recall-go/internal/logging"
	"github.com/54b3r/recall-go/internal/server"
)

// NewServeCmd constructs the `recall serve` command, which runs the HTTP
// API over the retrieval engine and the knowledge base.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var sources []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the recall HTTP API server",
		Long: `Start an HTTP server exposing the retrieval engine and the knowledge base.

Endpoints:
  POST /api/query             Semantic query over the in-memory index
  POST /api/index             Index documents sent in the request body
  POST /api/knowledge/search  Search the persistent knowledge base
  GET  /api/health            Liveness check
  GET  /api/ready             Readiness (probes the embedding backend)
  GET  /metrics               Prometheus metrics

Sources given with --source are indexed before the server accepts traffic,
so queries work immediately. Additional documents can be added at runtime
via POST /api/index.

Relevant environment variables:
  RECALL_HOST                Bind address (default: 127.0.0.1)
  RECALL_PORT                Listen port (default: 8080)
  RECALL_SERVER_RATE_LIMIT   Per-client requests/second (default: 10)
  EMBEDDING_PROVIDER         Embedding backend: ollama, openai, azure, gemini

Examples:
  recall serve --source 'docs/**/*.md'
  recall serve --host 0.0.0.0 --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			met, reg := newMetrics()

			gen, client, err := buildGenerator(ctx, log, met)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			eng, err := buildEngine(gen, log, met)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			store, _, err := buildKnowledgeStore(gen, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer store.Close()

			if len(sources) > 0 {
				pipeline, err := ingestion.NewPipeline(eng, ingestion.Config{}, log)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				report, err := pipeline.Ingest(ctx, sources, func(msg string) {
					log.Info(msg)
				})
				if err != nil {
					return fmt.Errorf("serve: preload failed: %w", err)
				}
				log.Info("preload complete",
					slog.Int("documents", report.Documents),
					slog.Int("chunks", report.Chunks),
					slog.Int("skipped", report.Skipped),
				)
			}

			var pingers []server.Pinger
			if client != nil {
				pingers = append(pingers, server.NewEmbeddingPinger(client, embedder.ResolveBackend()))
			}

			if host == "" {
				host = getEnvOrDefault("RECALL_HOST", "")
			}
			if port == 0 {
				port = getEnvInt("RECALL_PORT", 0)
			}

			srv, err := server.New(eng, store, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				RateLimit: getEnvFloat("RECALL_SERVER_RATE_LIMIT", 0),
				Registry:  reg,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address (default: RECALL_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default: RECALL_PORT or 8080)")
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "File path, glob pattern, or URL to index at startup (repeatable)")

	return cmd
}
