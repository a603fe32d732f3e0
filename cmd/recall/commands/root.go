// Package commands defines all Cobra CLI commands for the recall binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/recall-go/internal/audit"
	"github.com/54b3r/recall-go/internal/config"
	"github.com/54b3r/recall-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "recall",
		Short: "recall — local-first document retrieval and knowledge base",
		Long: `recall is a local-first retrieval engine for your documents.

It chunks markdown and text files, embeds them through a configurable
embedding backend (Ollama, OpenAI, Azure, or Gemini), and answers semantic
queries with ranked, scored excerpts. A separate persistent knowledge base
stores title/content-embedded entries with duplicate detection.

Embedding backend is selected via the EMBEDDING_PROVIDER environment
variable or a YAML config file (~/.recall/config.yaml). Without a backend,
recall degrades to deterministic local hash embeddings.
See 'recall --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.recall/config.yaml)")

	root.AddCommand(
		NewQueryCmd(),
		NewIndexCmd(),
		NewKnowledgeCmd(),
		NewServeCmd(),
		NewWatchCmd(),
		NewVersionCmd(),
	)

	return root
}
