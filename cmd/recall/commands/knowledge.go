package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/recall-go/internal/dedup"
	"github.com/54b3r/recall-go/internal/docstore"
)

// NewKnowledgeCmd constructs the `recall knowledge` command group for the
// persistent knowledge base.
func NewKnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the persistent knowledge base",
		Long: `Manage knowledge base entries stored in a local SQLite database
(~/.recall/knowledge.db by default, override with RECALL_KNOWLEDGE_DB).

Each entry carries a title and a content body, both embedded separately.
Searches can match on the title embedding, the content embedding, or a
weighted combination of both. New entries are checked against existing ones
for near-duplicates before being stored.

Relevant environment variables:
  RECALL_KNOWLEDGE_DB     Database path, or "disabled" for in-memory only
  SIMILARITY_THRESHOLD    Minimum search score (default: 0.7)
  TITLE_WEIGHT            Title weight in combined mode (default: 0.3)
  CONTENT_WEIGHT          Content weight in combined mode (default: 0.7)
  DEDUP_THRESHOLD         Duplicate detection threshold (default: 0.85)`,
	}

	cmd.AddCommand(
		newKnowledgeAddCmd(),
		newKnowledgeSearchCmd(),
		newKnowledgeListCmd(),
		newKnowledgeRemoveCmd(),
		newKnowledgeExportCmd(),
	)

	return cmd
}

func newKnowledgeAddCmd() *cobra.Command {
	var title string
	var content string
	var fields []string
	var force bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry to the knowledge base",
		Long: `Add a knowledge base entry. The title and content are embedded separately
and the entry is checked against existing ones for near-duplicates; a new
entry whose title AND content both closely match an existing entry is
rejected unless --force is given.

Examples:
  recall knowledge add --title "OOM on ingest of large PDFs" \
    --content "Raise RECALL_CACHE_MAX_ENTRIES and chunk at 500 chars."
  recall knowledge add --title "..." --content "..." --field team=platform --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if title == "" || content == "" {
				return fmt.Errorf("knowledge add: --title and --content are required")
			}

			gen, _, err := buildGenerator(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("knowledge add: %w", err)
			}
			store, detector, err := buildKnowledgeStore(gen, log)
			if err != nil {
				return fmt.Errorf("knowledge add: %w", err)
			}
			defer store.Close()

			if !force {
				existing := make([]dedup.Item, 0, store.Len())
				for _, doc := range store.Export() {
					existing = append(existing, dedup.Item{
						ID:       doc.ID,
						Problem:  doc.Title,
						Solution: doc.Content,
					})
				}
				dup, match, err := detector.IsDuplicate(ctx, dedup.Item{
					Problem:  title,
					Solution: content,
				}, existing)
				if err != nil {
					return fmt.Errorf("knowledge add: duplicate check failed: %w", err)
				}
				if dup {
					return fmt.Errorf("knowledge add: near-duplicate of entry %s (%q); use --force to add anyway",
						match.ID, match.Problem)
				}
			}

			doc := docstore.Document{Title: title, Content: content}
			if len(fields) > 0 {
				doc.Fields = make(map[string]string, len(fields))
				for _, f := range fields {
					k, v, ok := strings.Cut(f, "=")
					if !ok {
						return fmt.Errorf("knowledge add: malformed --field %q (want key=value)", f)
					}
					doc.Fields[k] = v
				}
			}

			id, err := store.Add(ctx, doc)
			if err != nil {
				return fmt.Errorf("knowledge add: %w", err)
			}
			fmt.Printf("Added entry %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Entry title (required)")
	cmd.Flags().StringVarP(&content, "content", "c", "", "Entry content (required)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Extra metadata as key=value (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "Skip the duplicate check")

	return cmd
}

func newKnowledgeSearchCmd() *cobra.Command {
	var mode string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search knowledge base entries by semantic similarity.

The search mode selects which embedding is compared: "title", "content",
or "combined" (weighted sum of both, the default).

Examples:
  recall knowledge search "pods stuck in pending"
  recall knowledge search "cache eviction" --mode title --limit 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			gen, _, err := buildGenerator(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("knowledge search: %w", err)
			}
			store, _, err := buildKnowledgeStore(gen, log)
			if err != nil {
				return fmt.Errorf("knowledge search: %w", err)
			}
			defer store.Close()

			matches, err := store.Search(ctx, args[0], docstore.Mode(mode), limit, nil)
			if err != nil {
				return fmt.Errorf("knowledge search: %w", err)
			}
			if len(matches) == 0 {
				fmt.Println("No matching entries.")
				return nil
			}
			for i, m := range matches {
				fmt.Printf("%d. [%.3f] %s  (%s)\n", i+1, m.Score, m.Document.Title, m.Document.ID)
				fmt.Println(indent(m.Document.Content, "   "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "combined", "Search mode: title, content, or combined")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of matches (0 = no limit)")

	return cmd
}

func newKnowledgeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all knowledge base entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			gen, _, err := buildGenerator(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("knowledge list: %w", err)
			}
			store, _, err := buildKnowledgeStore(gen, log)
			if err != nil {
				return fmt.Errorf("knowledge list: %w", err)
			}
			defer store.Close()

			docs := store.Export()
			if len(docs) == 0 {
				fmt.Println("Knowledge base is empty.")
				return nil
			}
			for _, doc := range docs {
				fmt.Printf("%s  %s  (updated %s)\n",
					doc.ID, doc.Title, doc.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newKnowledgeRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a knowledge base entry by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			gen, _, err := buildGenerator(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("knowledge remove: %w", err)
			}
			store, _, err := buildKnowledgeStore(gen, log)
			if err != nil {
				return fmt.Errorf("knowledge remove: %w", err)
			}
			defer store.Close()

			existed, err := store.Remove(args[0])
			if err != nil {
				return fmt.Errorf("knowledge remove: %w", err)
			}
			if !existed {
				return fmt.Errorf("knowledge remove: no entry with ID %s", args[0])
			}
			fmt.Printf("Removed entry %s\n", args[0])
			return nil
		},
	}
}

func newKnowledgeExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export all knowledge base entries as JSON",
		Long: `Write every knowledge base entry to stdout as a JSON array, sorted by ID.
Embeddings are not included; re-importing entries re-embeds them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			gen, _, err := buildGenerator(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("knowledge export: %w", err)
			}
			store, _, err := buildKnowledgeStore(gen, log)
			if err != nil {
				return fmt.Errorf("knowledge export: %w", err)
			}
			defer store.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(store.Export()); err != nil {
				return fmt.Errorf("knowledge export: %w", err)
			}
			return nil
		},
	}
}
