package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperflow/paperflow-go/internal/cluster"
	"github.com/paperflow/paperflow-go/internal/logging"
	"github.com/paperflow/paperflow-go/internal/provider"
)

// NewClusterCmd constructs the `paperflow cluster` command, which partitions
// the paper library into thematic groups.
func NewClusterCmd() *cobra.Command {
	var k int
	var noLabels bool

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Group the paper library into thematic clusters",
		Long: `Export every stored paper vector, partition the library with k-means, and
label each cluster's common theme with the agent model.

Examples:
  paperflow cluster
  paperflow cluster -k 8
  paperflow cluster --no-labels    # skip model-generated theme labels`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			store, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("cluster: %w", err)
			}
			defer store.Close()

			svc := cluster.NewService(store, nil)
			if !noLabels {
				agent, err := provider.NewFromEnv(ctx, provider.RoleAgent)
				if err != nil {
					return fmt.Errorf("cluster: failed to initialise agent model: %w", err)
				}
				svc = cluster.NewService(store, agent)
			}

			groups, err := svc.Run(ctx, k)
			if err != nil {
				return fmt.Errorf("cluster: %w", err)
			}

			for _, g := range groups {
				fmt.Printf("\nCluster %d — %s (%d papers)\n", g.ID, g.Label, len(g.Papers))
				for _, p := range g.Papers {
					line := p.Title
					if line == "" {
						line = p.ID
					}
					if p.Venue != "" || p.Year != "" {
						line = fmt.Sprintf("%s [%s %s]", line, p.Venue, p.Year)
					}
					fmt.Printf("  - %s\n", line)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "clusters", "k", 5, "Number of clusters")
	cmd.Flags().BoolVar(&noLabels, "no-labels", false, "Skip model-generated theme labels")

	return cmd
}
