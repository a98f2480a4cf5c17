package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/halcyondata/askdb/gen"
)

// AskCmd answers one natural-language question.
var AskCmd = &cobra.Command{
	Use:   "ask \"<question>\"",
	Short: "Answer a natural-language question from the database",
	Long: `Run one question through the full pipeline: routing, SQL generation,
safety validation, access control, execution and interpretation.

Examples:
  askdb ask "show total sales by region" --user UA-123
  askdb ask "how many customers signed up last week?" --user UA-123 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := args[0]
		userID, _ := cmd.Flags().GetString("user")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		app, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		resp := app.engine.Process(ctx, userID, question)

		if jsonOutput {
			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		printResponse(resp)
		return nil
	},
}

func printResponse(resp gen.Response) {
	switch resp.Type {
	case gen.ResponseError:
		pterm.Error.Println(resp.Content)
		if resp.IncidentID != "" {
			pterm.Info.Printf("Incident: %s\n", resp.IncidentID)
		}
	default:
		if resp.Summary != "" {
			pterm.Info.Println(resp.Summary)
		}
		fmt.Println(resp.Content)
		for _, warning := range resp.Warnings {
			pterm.Warning.Println(warning)
		}
		if resp.CacheHit {
			pterm.Debug.Println("Served from cache")
		}
	}
}

func init() {
	AskCmd.Flags().StringP("user", "u", "", "User id for access control (required)")
	AskCmd.Flags().BoolP("json", "j", false, "Output the full response as JSON")
	AskCmd.Flags().Duration("timeout", 2*time.Minute, "Overall request timeout")
	AskCmd.MarkFlagRequired("user")
}
