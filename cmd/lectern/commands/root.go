package commands

import (
	"github.com/spf13/cobra"
)

var (
	// dbPath is the path to the SQLite database.
	dbPath string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Lectern reading companion CLI",
	Long: `Lectern CLI inspects and manages the reading companion's local state.

Use this CLI to list conversations, review and merge summary cards, and
export summaries while the companion daemon serves the reader frontend.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "",
		"Path to SQLite database (default: ~/.lectern/lectern.db)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	// Add subcommands.
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(cardsCmd)
	rootCmd.AddCommand(versionCmd)
}
