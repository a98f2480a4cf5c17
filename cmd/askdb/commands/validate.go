package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/halcyondata/askdb/sqlguard"
)

// ValidateCmd runs the SQL safety validator on a statement without
// executing it.
var ValidateCmd = &cobra.Command{
	Use:   "validate \"<sql>\"",
	Short: "Run the SQL safety validator on a statement",
	Long: `Check a statement against the same rules the pipeline applies before
execution: forbidden keywords, dangerous constructs, SELECT-only shape and
complexity ceilings. Nothing is executed.

Examples:
  askdb validate "SELECT region, SUM(amount) FROM sales GROUP BY region"
  askdb validate "DELETE FROM sales" --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		report := newValidator(cfg).Validate(args[0])

		if jsonOutput {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		printReport(report)
		if !report.Valid {
			cmd.SilenceUsage = true
			return fmt.Errorf("statement rejected")
		}
		return nil
	},
}

func printReport(report sqlguard.Report) {
	if report.Valid {
		pterm.Success.Println("Statement passed all checks")
	} else if report.HardFailure {
		pterm.Error.Println("Statement rejected (security or shape violation)")
	} else {
		pterm.Warning.Println("Statement rejected (complexity ceiling)")
	}

	for _, msg := range report.Errors {
		pterm.Println("  - " + msg)
	}

	pterm.Info.Printf("Complexity: %d joins, %d conditions, %d subqueries, %d function calls\n",
		report.Complexity.Joins,
		report.Complexity.Conditions,
		report.Complexity.Subqueries,
		report.Complexity.Functions,
	)
}

func init() {
	ValidateCmd.Flags().BoolP("json", "j", false, "Output the full report as JSON")
}
