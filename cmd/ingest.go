/*
Copyright © 2025 baoteam
*/
package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/database"
	"github.com/baoteam/rag-bot/service"
	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index transcript entries into the vector store",
	Long: `Reads yaml transcript entries from the source directory, chunks and
embeds the new ones and writes them to Weaviate. Already-ingested entries are
skipped via the local ledger. Can also remove indexed sources or list what has
been ingested.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		file, _ := cmd.Flags().GetString("file")
		reinit, _ := cmd.Flags().GetBool("reinit")
		list, _ := cmd.Flags().GetBool("list")
		like, _ := cmd.Flags().GetString("like")
		remove, _ := cmd.Flags().GetBool("remove")
		filterKey, _ := cmd.Flags().GetString("filter-key")
		filterValues, _ := cmd.Flags().GetStringArray("filter-value")

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		weaviateDb, err := database.NewWeaviateStore(cfg.Weaviate, cfg.Retriever.Collection)
		if err != nil {
			log.Fatalf("Failed to connect to Weaviate database: %v", err)
		}
		ledger, err := database.NewIngestLedger(".")
		if err != nil {
			log.Fatalf("Failed to open ingest ledger: %v", err)
		}
		defer ledger.Close()

		ctx := context.Background()
		if reinit {
			if err := weaviateDb.ReInit(ctx); err != nil {
				log.Fatalf("Failed to reinitialize Weaviate collection: %v", err)
			}
			// The rebuilt collection is empty, so the ledger for it starts
			// over too or the ingest below would skip everything.
			if err := ledger.Clear(ctx, cfg.Retriever.Collection); err != nil {
				log.Fatalf("Failed to clear ingest ledger: %v", err)
			}
		}

		ingestService := service.NewIngestService(cfg, weaviateDb, ledger, service.NewOpenAIService(cfg.OpenAI))

		switch {
		case list:
			records, err := ingestService.ListSources(ctx, like)
			if err != nil {
				log.Fatalf("Failed to list sources: %v", err)
			}
			for _, rec := range records {
				fmt.Printf("%s\t%s\n", rec.InsertedAt.Format("2006-01-02 15:04:05"), rec.EntryName)
			}
		case remove:
			if err := ingestService.Remove(ctx, filterKey, filterValues); err != nil {
				log.Fatalf("Failed to remove sources: %v", err)
			}
			log.Printf("removed sources where %s in %v", filterKey, filterValues)
		case file != "":
			if err := ingestService.IngestFile(ctx, file); err != nil {
				log.Fatalf("Failed to ingest %s: %v", file, err)
			}
		default:
			if err := ingestService.IngestFolder(ctx, dir); err != nil {
				log.Fatalf("Failed to ingest folder: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringP("dir", "d", "", "Source directory (defaults to the configured one)")
	ingestCmd.Flags().StringP("file", "f", "", "Ingest a single entry file")
	ingestCmd.Flags().BoolP("reinit", "r", false, "Drop and recreate the collection first")
	ingestCmd.Flags().Bool("list", false, "List ingested entries")
	ingestCmd.Flags().String("like", "", "Filter --list by entry name substring")
	ingestCmd.Flags().Bool("remove", false, "Remove indexed sources by metadata filter")
	ingestCmd.Flags().String("filter-key", "source", "Metadata key for --remove")
	ingestCmd.Flags().StringArray("filter-value", []string{}, "Metadata values for --remove")
}
