package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperflow/paperflow-go/internal/logging"
)

// NewRunsCmd constructs the `paperflow runs` command group for inspecting and
// purging checkpointed graph runs.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List checkpointed pipeline runs",
		Long: `List the graph runs recorded in the checkpoint store, most recent first.
Each ingestion run and each conversation thread owns one checkpoint row
holding its latest state.

Examples:
  paperflow runs
  paperflow runs purge lit-review
  paperflow runs purge --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()

			store, err := buildCheckpointStore(log)
			if err != nil {
				return fmt.Errorf("runs: %w", err)
			}
			if store == nil {
				return fmt.Errorf("runs: checkpointing is disabled")
			}
			defer store.Close()

			runs, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("no checkpointed runs")
				return nil
			}

			fmt.Printf("%-38s %-18s %5s  %s\n", "RUN", "LAST NODE", "STEP", "UPDATED")
			for _, r := range runs {
				fmt.Printf("%-38s %-18s %5d  %s\n",
					r.RunID, r.Node, r.Step, r.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(newRunsPurgeCmd())
	return cmd
}

// newRunsPurgeCmd constructs `paperflow runs purge`, which deletes checkpoints
// by run ID or wholesale.
func newRunsPurgeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "purge [run-id...]",
		Short: "Delete checkpointed runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()

			if !all && len(args) == 0 {
				return fmt.Errorf("runs purge: pass run IDs or --all")
			}

			store, err := buildCheckpointStore(log)
			if err != nil {
				return fmt.Errorf("runs purge: %w", err)
			}
			if store == nil {
				return fmt.Errorf("runs purge: checkpointing is disabled")
			}
			defer store.Close()

			ids := args
			if all {
				runs, err := store.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("runs purge: %w", err)
				}
				ids = make([]string, 0, len(runs))
				for _, r := range runs {
					ids = append(ids, r.RunID)
				}
			}

			for _, id := range ids {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("runs purge: %w", err)
				}
			}
			fmt.Printf("purged %d run(s)\n", len(ids))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every checkpointed run")
	return cmd
}
