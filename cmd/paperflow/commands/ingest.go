package commands

import (
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/paperflow/paperflow-go/internal/graph"
	"github.com/paperflow/paperflow-go/internal/ingest"
	"github.com/paperflow/paperflow-go/internal/logging"
	"github.com/paperflow/paperflow-go/internal/pdf"
	"github.com/paperflow/paperflow-go/internal/provider"
	"github.com/paperflow/paperflow-go/internal/tracing"
)

// NewIngestCmd constructs the `paperflow ingest` command, which runs the
// ingestion pipeline over one or more PDF papers.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [pdf...]",
		Short: "Ingest academic PDFs into the paper knowledge base",
		Long: `Ingest one or more academic papers into the Qdrant knowledge base.

Each paper's leading pages are rendered for a vision model, which extracts
title, authors, year, venue, abstract, and an introduction summary. Missing
or preprint-only metadata is repaired through a bounded web-search loop
before one curated summary document per paper is embedded and stored.

Required environment variables:
  EXTRACTOR_API_KEY    Vision model credential (default backend: DashScope)
  EMBEDDING_API_KEY    Embedding credential (openai backend)
  TAVILY_API_KEY       Web search credential (metadata repair)
  QDRANT_HOST          Qdrant server hostname (default: localhost)

Examples:
  paperflow ingest ./papers/attention-is-all-you-need.pdf
  paperflow ingest ./papers/*.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			// Langfuse tracing is opt-in, a no-op when keys are absent.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			extractor, err := provider.NewFromEnv(ctx, provider.RoleExtractor)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise extractor model: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			store, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			searcher, err := buildSearcher()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			opts := []graph.Option{graph.WithMetrics(engineMetrics(), "ingestion")}
			ckStore, err := buildCheckpointStore(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if ckStore != nil {
				defer ckStore.Close()
				opts = append(opts, graph.WithCheckpointer(ckStore))
			}

			nodes := ingest.NewNodes(extractor, &pdf.MuPDFRasterizer{}, emb, store, searcher)
			compiled, err := ingest.BuildGraph(nodes, opts...)
			if err != nil {
				return fmt.Errorf("ingest: failed to build pipeline: %w", err)
			}

			failures := 0
			for _, path := range args {
				runID := uuid.NewString()
				log.Info("ingest: starting run",
					slog.String("run_id", runID),
					slog.String("document", path),
				)

				final, err := compiled.Invoke(ctx, graph.State{
					ingest.KeyDocumentPath: path,
					ingest.KeyRetryCount:   0,
				}, runID)
				if err != nil {
					failures++
					log.Error("ingest: run aborted", slog.String("document", path), slog.Any("error", err))
					continue
				}

				if final.String(ingest.KeyStatus) != ingest.StatusSuccess {
					failures++
					fmt.Printf("FAILED   %s: %s\n", path, final.String(ingest.KeyErrorMessage))
					continue
				}
				fmt.Printf("INGESTED %s\n", path)
			}

			if count, err := store.Count(ctx); err == nil {
				log.Info("ingest: library size", slog.Uint64("documents", count))
			}

			if failures > 0 {
				return fmt.Errorf("ingest: %d of %d papers failed", failures, len(args))
			}
			return nil
		},
	}

	return cmd
}
