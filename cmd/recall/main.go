// Command recall is the entry point for the recall retrieval engine.
// It provides a CLI interface (via Cobra) for indexing and querying local
// documents, managing the knowledge base, and running the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/recall-go/cmd/recall/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
