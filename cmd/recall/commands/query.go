package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/recall-go/internal/ingestion"
)

// NewQueryCmd constructs the `recall query` command: index the given sources,
// then answer a semantic question against them.
func NewQueryCmd() *cobra.Command {
	var sources []string
	var topK int
	var minScore float64

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a semantic question against a set of documents",
		Long: `Index the given sources into an in-memory similarity index and answer a
semantic question with ranked, scored excerpts.

Sources may be file paths, glob patterns (** is supported), or HTTP(S) URLs.
The embedding cache under ~/.recall/cache makes repeated queries over the
same documents cheap: only the question itself needs a fresh embedding.

Relevant environment variables:
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure, gemini
  EMBEDDING_*          Backend-specific overrides (see README)
  RECALL_TOP_K         Default number of results (default: 5)
  RECALL_MIN_SCORE     Minimum similarity score to report (default: 0)

Examples:
  recall query "how do I rotate the signing key" --source 'docs/**/*.md'
  recall query "upgrade path from v2" --source CHANGELOG.md --source docs/migration.md -k 3
  recall query "retry semantics" --source https://example.com/api.md --min-score 0.4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()
			question := args[0]

			if len(sources) == 0 {
				return fmt.Errorf("query: at least one --source is required")
			}

			gen, _, err := buildGenerator(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			eng, err := buildEngine(gen, log, nil)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(eng, ingestion.Config{}, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			report, err := pipeline.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("query: ingestion failed: %w", err)
			}
			if report.Documents == 0 {
				return fmt.Errorf("query: no documents could be ingested from %d source(s)", len(sources))
			}
			log.Info("index ready",
				slog.Int("documents", report.Documents),
				slog.Int("chunks", report.Chunks),
				slog.Int("skipped", report.Skipped),
			)

			results, err := eng.Query(ctx, question, topK, minScore)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			if len(results) == 0 {
				fmt.Println("No results above the score threshold.")
				return nil
			}

			for i, r := range results {
				fmt.Printf("%d. [%.3f] %s", i+1, r.Score, r.Metadata["source"])
				if section := r.Metadata["section"]; section != "" {
					fmt.Printf(" — %s", section)
				}
				fmt.Println()
				fmt.Println(indent(r.Content, "   "))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "File path, glob pattern, or URL to index (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results to return (default: RECALL_TOP_K or 5)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum similarity score (default: RECALL_MIN_SCORE or 0)")

	return cmd
}

// indent prefixes every line of s for readable terminal output.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
