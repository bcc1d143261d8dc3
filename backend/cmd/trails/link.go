package main

import (
	"context"

	"github.com/spf13/cobra"

	"trails/backend/internal/graph"
	"trails/backend/internal/linker"
	"trails/backend/internal/services"
	"trails/backend/internal/vectorindex"
)

// similarityFlags are shared by link-similar and link-text.
type similarityFlags struct {
	threshold     float64
	label         string
	indexName     string
	maxNodes      int
	bidirectional bool
	force         bool
}

func (f *similarityFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "minimum similarity score (defaults to the configured threshold)")
	cmd.Flags().StringVar(&f.label, "label", "", "only link nodes carrying this label")
	cmd.Flags().StringVar(&f.indexName, "index", "", "vector index to search")
	cmd.Flags().IntVar(&f.maxNodes, "max-nodes", 0, "maximum neighbors linked per node")
	cmd.Flags().BoolVar(&f.bidirectional, "bidirectional", false, "also create the reverse edge")
	cmd.Flags().BoolVar(&f.force, "force", false, "refresh edges that already exist")
}

func (f *similarityFlags) options(cmd *cobra.Command) linker.SimilarityOptions {
	opts := linker.SimilarityOptions{
		Label:         f.label,
		IndexName:     f.indexName,
		MaxNodes:      f.maxNodes,
		Bidirectional: f.bidirectional,
		Force:         f.force,
	}
	if cmd.Flags().Changed("threshold") {
		opts.Threshold = vectorindex.Threshold(f.threshold)
	}
	return opts
}

var (
	linkSimilarFlags similarityFlags
	linkTextFlags    similarityFlags
	linkTextFuzzy    bool
)

func init() {
	linkSimilarFlags.register(linkSimilarCmd)
	linkTextFlags.register(linkTextCmd)
	linkTextCmd.Flags().BoolVar(&linkTextFuzzy, "fuzzy", false, "link from every node close to the text instead of the exact match")
}

var linkSimilarCmd = &cobra.Command{
	Use:   "link-similar <node-id>",
	Short: "Link a node to the nodes whose text is similar",
	Long: `Search the vector index with the node's text and write SIMILAR_TO edges to
every neighbor above the threshold. Digits-only ids are native ids;
anything else is matched against the id property.

Examples:
  trails link-similar 42
  trails link-similar 0b7c0f6e-1d2a-4c55-9a43-2f1f3a9b8c10 --threshold 0.8 --bidirectional`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := graph.ParseNodeRef(args[0])
		if err != nil {
			return err
		}
		return withServices(cmd, func(ctx context.Context, sm *services.ServiceManager) error {
			res, err := sm.Similarity.FindAndLinkSimilarByID(ctx, ref, linkSimilarFlags.options(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var linkTextCmd = &cobra.Command{
	Use:   "link-text <text>",
	Short: "Link the node holding a text to its similar nodes",
	Long: `Find the node whose text matches exactly and link it like link-similar. With
--fuzzy, every node close to the text is linked instead.

Examples:
  trails link-text "Rivers of Europe"
  trails link-text rivers --fuzzy --max-nodes 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, sm *services.ServiceManager) error {
			opts := linkTextFlags.options(cmd)
			if linkTextFuzzy {
				results, err := sm.Similarity.FindAndLinkSimilarByTextFuzzy(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(cmd, results)
			}
			res, err := sm.Similarity.FindAndLinkSimilarByText(ctx, args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, []linker.SimilarityResult{res})
		})
	},
}
