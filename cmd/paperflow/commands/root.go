// Package commands defines all Cobra CLI commands for the paperflow binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/paperflow/paperflow-go/internal/audit"
	"github.com/paperflow/paperflow-go/internal/config"
	"github.com/paperflow/paperflow-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "paperflow",
		Short: "paperflow — an agentic research pipeline over academic papers",
		Long: `paperflow ingests academic PDFs into a vector knowledge base and answers
research questions grounded in it.

Ingestion reads each paper's leading pages with a vision model, repairs
incomplete metadata through bounded web search, and stores one curated
summary document per paper. Research questions are answered from the
library, optionally augmented with live web search, with references.

Model providers are selected via AGENT_*, CRITIC_*, and EXTRACTOR_*
environment variables or a YAML config file (~/.paperflow/config.yaml).
See 'paperflow --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env is the common dev setup; absence is fine.
			_ = godotenv.Load()

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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.paperflow/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewDebateCmd(),
		NewClusterCmd(),
		NewRunsCmd(),
		NewVersionCmd(),
	)

	return root
}
