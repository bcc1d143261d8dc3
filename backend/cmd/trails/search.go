package main

import (
	"context"

	"github.com/spf13/cobra"

	"trails/backend/internal/services"
	"trails/backend/internal/vectorindex"
)

var (
	searchK         int
	searchThreshold float64
	searchLabel     string
	searchIndex     string
)

func init() {
	searchCmd.Flags().IntVarP(&searchK, "top", "k", 0, "number of neighbors to request (defaults to the configured value)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity score (defaults to the configured threshold)")
	searchCmd.Flags().StringVar(&searchLabel, "label", "", "label whose index is searched")
	searchCmd.Flags().StringVar(&searchIndex, "index", "", "vector index to search")
}

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find indexed text similar to a query",
	Long: `Run a similarity search and print the neighbors above the threshold, best
first.

Examples:
  trails search "mountain ranges" --label Section
  trails search rivers -k 10 --threshold 0.6`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := vectorindex.SearchOptions{
			K:         searchK,
			Label:     searchLabel,
			IndexName: searchIndex,
		}
		if cmd.Flags().Changed("threshold") {
			opts.Threshold = vectorindex.Threshold(searchThreshold)
		}
		return withServices(cmd, func(ctx context.Context, sm *services.ServiceManager) error {
			neighbors, err := sm.Vectors.SimilaritySearch(ctx, args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, neighbors)
		})
	},
}
