package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sonarfix/internal/db"
)

var eventsCmd = &cobra.Command{
	Use:   "events [run-id]",
	Short: "Show the run-event ledger",
	Long:  `Show every ledger event for one run, or the most recent events across all runs.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ledger, err := a.openLedger()
		if err != nil {
			return err
		}

		var events []db.RunEvent
		if len(args) == 1 {
			events, err = ledger.RunEvents(args[0])
		} else {
			limit, _ := cmd.Flags().GetInt("limit")
			events, err = ledger.RecentEvents(limit)
		}
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(events, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No events.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tRUN\tEVENT\tSTAGE\tDURATION\tDETAIL")
		for _, e := range events {
			dur := ""
			if e.DurationMs > 0 {
				dur = fmt.Sprintf("%dms", e.DurationMs)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Timestamp, shortID(e.RunID), e.Event, e.Stage, dur, e.Detail)
		}
		return tw.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	eventsCmd.Flags().Int("limit", 50, "Number of recent events to show when no run id is given")
	eventsCmd.Flags().String("format", "text", "Output format: text or json")
}
