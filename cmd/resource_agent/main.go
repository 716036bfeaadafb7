// Package main provides the resource_agent CLI: the HTTP API server, batch
// refreshes and reviewer actions against the resource catalog.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	verbose     bool
	databaseURL string
)

var rootCmd = &cobra.Command{
	Use:   "resource_agent",
	Short: "Resource Update Pipeline",
	Long: `Keeps curated resource entries accurate: re-collects their sources, proposes
field changes with a language model and routes them through review before
committing them to the catalog.

Configuration can be loaded from a JSON file using --config. Environment
variables (and a local .env file) supply secrets. Flags override both.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
