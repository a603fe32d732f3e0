package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/recall-go/internal/ingestion"
)

// NewIndexCmd constructs the `recall index` command, which runs the ingestion
// pipeline over the given sources to validate them and warm the embedding
// cache on disk.
func NewIndexCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Ingest documents and warm the on-disk embedding cache",
		Long: `Chunk and embed the given sources, persisting every embedding to the
on-disk cache (~/.recall/cache by default). Subsequent 'recall query' and
'recall serve' runs over the same documents then start without touching the
embedding backend.

Sources may be file paths, glob patterns (** is supported), or HTTP(S) URLs.
Sources that fail to load are skipped with a warning; the run only fails when
nothing could be ingested.

Relevant environment variables:
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure, gemini
  RECALL_CACHE_DIR     Cache directory (default: ~/.recall/cache)
  CHUNK_SIZE           Target chunk size in characters (default: 1000)
  CHUNK_OVERLAP        Overlap between neighbouring chunks (default: 100)

Examples:
  recall index --source 'docs/**/*.md'
  recall index --source runbooks/oncall.md --source https://example.com/api.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if len(sources) == 0 {
				return fmt.Errorf("index: at least one --source is required")
			}

			gen, _, err := buildGenerator(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			eng, err := buildEngine(gen, log, nil)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(eng, ingestion.Config{}, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			report, err := pipeline.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("index: ingestion failed: %w", err)
			}
			if report.Documents == 0 {
				return fmt.Errorf("index: no documents could be ingested from %d source(s)", len(sources))
			}

			fmt.Printf("Indexed %d document(s), %d chunk(s); %d source(s) skipped.\n",
				report.Documents, report.Chunks, report.Skipped)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "File path, glob pattern, or URL to index (repeatable)")

	return cmd
}
