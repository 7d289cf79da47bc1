// Command paperflow is the entry point for the paper ingestion and research
// pipeline: ingest PDFs into a vector knowledge base, ask grounded research
// questions over it, and explore the library through thematic clustering.
package main

import (
	"fmt"
	"os"

	"github.com/paperflow/paperflow-go/cmd/paperflow/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
