package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"trails/backend/internal/services"
)

var (
	ingestTitle string
	ingestModel string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to the page title or file name)")
	ingestCmd.Flags().StringVar(&ingestModel, "enrichment-model", "", "chat model used for titles and summaries (defaults to the configured model)")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|url>",
	Short: "Store a document as ordered, summarised sections",
	Long: `Load a text or HTML file, or fetch a URL, and store it as a Document node
whose sections are chained in reading order. A document that is already
stored is reported and left untouched.

Examples:
  # A local file
  trails ingest notes/rivers.txt

  # A web page with an explicit title
  trails ingest https://example.com/article --title "Rivers"

  # Summarise with a different model
  trails ingest notes/rivers.txt --enrichment-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, sm *services.ServiceManager) error {
			if ingestModel != "" {
				if sm.LLM == nil {
					return fmt.Errorf("--enrichment-model needs an LLM endpoint")
				}
				sm.LLM.SetModel(ingestModel)
			}
			doc, err := sm.Loader.Load(ctx, args[0])
			if err != nil {
				return err
			}
			if ingestTitle != "" {
				doc.Title = ingestTitle
			}
			res, err := sm.Ingestor.Ingest(ctx, *doc)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}
