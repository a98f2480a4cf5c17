package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyondata/askdb/cmd/askdb/commands"
	"github.com/halcyondata/askdb/logger"
)

var rootCmd = &cobra.Command{
	Use:   "askdb",
	Short: "askdb - ask your database questions in plain language",
	Long: `askdb - natural language interface over your database.

askdb routes each question through classification, SQL generation, safety
validation, access control and execution, then turns the result back into
plain language.

Available commands:
  ask      - Answer a natural-language question from the database
  validate - Run the SQL safety validator on a statement
  version  - Show version information

Examples:
  askdb ask "show total sales by region" --user UA-123
  askdb validate "SELECT region, SUM(amount) FROM sales GROUP BY region"
  askdb version`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a TOML config file (default: search upward for askdb.toml)")

	rootCmd.AddCommand(commands.AskCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
