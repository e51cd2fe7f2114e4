package main

import (
	"github.com/spf13/cobra"

	"github.com/fablekit/fable/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Fable server via HTTP.

These commands require a running server (fable serve).
Use --server to specify a custom server URL.

Examples:
  fable api health              # Check server health
  fable api books list          # List generated books
  fable api books create        # Generate a new storybook`,
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Book generation and catalog commands",
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Batch progress and audio backfill commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8480", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ListVoicesEndpoint{}).Command(getServerURL))

	// Books as subcommand group
	for _, ep := range endpoints.BookCommands() {
		booksCmd.AddCommand(ep.Command(getServerURL))
	}

	// Batches as subcommand group
	for _, ep := range endpoints.BatchCommands() {
		batchesCmd.AddCommand(ep.Command(getServerURL))
	}

	apiCmd.AddCommand(booksCmd)
	apiCmd.AddCommand(batchesCmd)
	rootCmd.AddCommand(apiCmd)
}
