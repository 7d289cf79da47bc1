package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/callbacks"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/paperflow/paperflow-go/internal/checkpoint"
	"github.com/paperflow/paperflow-go/internal/graph"
	"github.com/paperflow/paperflow-go/internal/logging"
	"github.com/paperflow/paperflow-go/internal/pdf"
	"github.com/paperflow/paperflow-go/internal/provider"
	"github.com/paperflow/paperflow-go/internal/rag"
	"github.com/paperflow/paperflow-go/internal/research"
	"github.com/paperflow/paperflow-go/internal/tracing"
)

// NewAskCmd constructs the `paperflow ask` command, which answers a research
// question grounded in the paper library.
func NewAskCmd() *cobra.Command {
	var (
		thread         string
		allowWebSearch bool
		topK           int
		temperature    float64
		upload         string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a research question over the paper library",
		Long: `Answer a research question from the ingested paper library, optionally
augmented with live web search when the router judges the library
insufficient. Answers cite their sources and end with a references section.

Passing the same --thread across invocations continues a conversation: prior
turns are restored from the checkpoint store and inform the answer.

Examples:
  paperflow ask "what approaches exist for KV-cache compression?"
  paperflow ask --web=false "summarise the attention papers in my library"
  paperflow ask --thread lit-review "and how do they differ from MQA?"
  paperflow ask --upload ./new-paper.pdf "how does this relate to my library?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			question := args[0]

			// Langfuse tracing is opt-in, a no-op when keys are absent.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			agent, err := provider.NewFromEnv(ctx, provider.RoleAgent)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise agent model: %w", err)
			}
			extractor, err := provider.NewFromEnv(ctx, provider.RoleExtractor)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise extractor model: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			store, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer store.Close()

			retriever, err := rag.NewRetriever(emb, store, topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			searcher, err := buildSearcher()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			opts := []graph.Option{graph.WithMetrics(engineMetrics(), "research")}
			ckStore, err := buildCheckpointStore(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if ckStore != nil {
				defer ckStore.Close()
				opts = append(opts, graph.WithCheckpointer(ckStore))
			}

			nodes := research.NewNodes(agent, extractor, &pdf.MuPDFRasterizer{}, retriever, searcher)
			compiled, err := research.BuildGraph(nodes, opts...)
			if err != nil {
				return fmt.Errorf("ask: failed to build pipeline: %w", err)
			}

			if thread == "" {
				thread = uuid.NewString()
			}

			initial := graph.State{
				research.KeyQuestion:       question,
				research.KeyAllowWebSearch: allowWebSearch,
				research.KeyTopK:           topK,
			}
			// Only an explicit flag carries the temperature into the run, so
			// a deliberate 0 is distinguishable from "use the default".
			if cmd.Flags().Changed("temperature") {
				initial[research.KeyTemperature] = temperature
			}
			if upload != "" {
				initial[research.KeyUploadedDocumentPath] = upload
			}
			if history := loadThreadHistory(cmd, ckStore, thread, log); len(history) > 0 {
				initial[research.KeyConversationHistory] = history
				log.Info("ask: continuing thread",
					slog.String("thread", thread),
					slog.Int("prior_turns", len(history)),
				)
			}

			var answer string
			for ev, err := range compiled.Stream(ctx, initial, thread) {
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				fmt.Fprintf(os.Stderr, "· %s\n", ev.Node)
				if a := ev.Update.String(research.KeyAnswer); a != "" {
					answer = a
				}
			}

			fmt.Println(answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&thread, "thread", "t", "", "Conversation thread ID (default: a fresh thread per invocation)")
	cmd.Flags().BoolVar(&allowWebSearch, "web", true, "Allow web search when the library is insufficient")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Local retrieval depth (default: 5)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Writer sampling temperature (default: 0.7)")
	cmd.Flags().StringVarP(&upload, "upload", "u", "", "PDF to summarise into the question's context")

	return cmd
}

// loadThreadHistory restores prior conversation turns for the thread from the
// checkpoint store. A missing checkpoint simply means a fresh thread.
func loadThreadHistory(cmd *cobra.Command, ckStore *checkpoint.SQLiteStore, thread string, log *slog.Logger) []research.Turn {
	if ckStore == nil {
		return nil
	}
	ck, err := ckStore.Load(cmd.Context(), thread)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			log.Warn("ask: could not restore thread history", slog.Any("error", err))
		}
		return nil
	}
	return research.TurnsFromState(ck.State)
}
