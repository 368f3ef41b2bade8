// Package cmd implements the reporag CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// configPath is the --config flag value.
	configPath string

	// Version is set at build time via -ldflags.
	Version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "reporag",
	Short: "Retrieval-augmented answering service for source code repositories",
	Long: `RepoRAG ingests a Git repository into a vector index and answers
natural-language questions about it with grounded, cited responses.

Ingestion runs as a background job behind a poll-based API; queries combine
dense vector search with lexical BM25 ranking via reciprocal rank fusion.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
}
