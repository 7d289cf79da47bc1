package commands

import (
	"fmt"
	"os"

	"github.com/cloudwego/eino/callbacks"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/paperflow/paperflow-go/internal/debate"
	"github.com/paperflow/paperflow-go/internal/graph"
	"github.com/paperflow/paperflow-go/internal/logging"
	"github.com/paperflow/paperflow-go/internal/provider"
	"github.com/paperflow/paperflow-go/internal/tracing"
)

// NewDebateCmd constructs the `paperflow debate` command: an adversarial
// refinement loop where a builder model proposes a solution to a research
// goal and a critic model stress-tests it until approval or the round budget.
func NewDebateCmd() *cobra.Command {
	var rounds int

	cmd := &cobra.Command{
		Use:   "debate [goal]",
		Short: "Refine a research idea through a builder/critic debate",
		Long: `Run an adversarial refinement loop over a research goal: the agent model
proposes a solution, a separate critic model reviews it, and the proposal is
refined round by round until the critic approves or the round budget runs out.

The critic is configured independently via CRITIC_* environment variables so
the review comes from a different model than the proposal.

Examples:
  paperflow debate "a retrieval index that survives corpus drift"
  paperflow debate --rounds 12 "speculative decoding for diffusion models"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			goal := args[0]

			// Langfuse tracing is opt-in, a no-op when keys are absent.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			builder, err := provider.NewFromEnv(ctx, provider.RoleAgent)
			if err != nil {
				return fmt.Errorf("debate: failed to initialise builder model: %w", err)
			}
			critic, err := provider.NewFromEnv(ctx, provider.RoleCritic)
			if err != nil {
				return fmt.Errorf("debate: failed to initialise critic model: %w", err)
			}

			opts := []graph.Option{graph.WithMetrics(engineMetrics(), "debate")}
			ckStore, err := buildCheckpointStore(log)
			if err != nil {
				return fmt.Errorf("debate: %w", err)
			}
			if ckStore != nil {
				defer ckStore.Close()
				opts = append(opts, graph.WithCheckpointer(ckStore))
			}

			compiled, err := debate.BuildGraph(debate.NewNodes(builder, critic, rounds), opts...)
			if err != nil {
				return fmt.Errorf("debate: failed to build pipeline: %w", err)
			}

			runID := uuid.NewString()
			var final graph.State
			for ev, err := range compiled.Stream(ctx, graph.State{debate.KeyGoal: goal}, runID) {
				if err != nil {
					return fmt.Errorf("debate: %w", err)
				}
				switch ev.Node {
				case debate.NodeBuilder:
					fmt.Fprintf(os.Stderr, "── Builder, round %d ──\n%s\n\n",
						ev.Update.Int(debate.KeyRound), ev.Update.String(debate.KeyProposal))
				case debate.NodeCritic:
					fmt.Fprintf(os.Stderr, "── Critic ──\n%s\n\n",
						ev.Update.String(debate.KeyCritique))
				}
				if _, ok := ev.Update[debate.KeyConverged]; ok {
					if final == nil {
						final = graph.State{}
					}
					final[debate.KeyConverged] = ev.Update[debate.KeyConverged]
				}
				if p := ev.Update.String(debate.KeyProposal); p != "" {
					if final == nil {
						final = graph.State{}
					}
					final[debate.KeyProposal] = p
				}
			}

			if final.Bool(debate.KeyConverged) {
				fmt.Fprintln(os.Stderr, "The critic approved the proposal.")
			} else {
				fmt.Fprintln(os.Stderr, "Round budget exhausted without approval; latest proposal follows.")
			}
			fmt.Println(final.String(debate.KeyProposal))
			return nil
		},
	}

	cmd.Flags().IntVar(&rounds, "rounds", 0, "Maximum debate rounds (default: 8, ceiling: 20)")

	return cmd
}
