package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"trails/backend/internal/constants"
	"trails/backend/internal/graph"
	"trails/backend/internal/services"
)

var migrateLabels []string

func init() {
	migrateCmd.Flags().StringSliceVar(&migrateLabels, "label", []string{constants.LabelChunk, constants.LabelDocument, constants.LabelSection}, "labels to create lookup and vector indexes for")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create graph indexes and bootstrap vector indexes",
	Long: `Create the id and text lookup indexes for each label and make sure a vector
index exists for it. Running it again is harmless.

Examples:
  # Default labels
  trails migrate

  # Only documents
  trails migrate --label Document`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, sm *services.ServiceManager) error {
			return runMigrate(ctx, cmd, sm, migrateLabels)
		})
	},
}

func runMigrate(ctx context.Context, cmd *cobra.Command, sm *services.ServiceManager, labels []string) error {
	if err := graph.EnsureSchema(ctx, sm.Repo.Executor(), labels...); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Lookup indexes ensured for %d labels\n", len(labels))

	for _, label := range labels {
		idx, err := sm.Vectors.Select(ctx, "", label)
		if err != nil {
			return fmt.Errorf("failed to prepare vector index for %s: %w", label, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vector index %s ready for %s\n", idx.Name(), label)
	}
	return nil
}
