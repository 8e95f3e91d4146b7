/*
Copyright © 2025 baoteam
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rag-bot",
	Short: "Retrieval-augmented chat backend for video transcripts",
	Long: `rag-bot answers questions over a library of video transcripts.
Transcripts are chunked, embedded and indexed in Weaviate; questions go
through query rewriting, vector search and relevance filtering before an
LLM writes the answer with timestamped source links.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/config.yaml", "config file")
}
