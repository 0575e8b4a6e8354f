package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sonarfix/internal/analytics"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise run outcomes, stage timings and failure rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseSince(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ledger, err := a.openLedger()
		if err != nil {
			return err
		}
		stats, err := analytics.Collect(ledger, since)
		if err != nil {
			return err
		}
		total, err := a.effort.Total()
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(struct {
				*analytics.Stats
				TotalEffortMinutes int `json:"total_effort_minutes"`
			}{stats, total}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		o := stats.Outcomes
		fmt.Fprintf(w, "Runs: %d  success: %d (%.1f%%)  nothing to process: %d  failed: %d\n",
			o.Total, o.Success, o.SuccessPct, o.NothingToProcess, o.Failed)
		fmt.Fprintf(w, "Total effort credited: %d min\n\n", total)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STAGE\tRUNS\tAVG\tP50\tP95\tFAILED")
		failed := map[string]analytics.StageFailureRate{}
		for _, f := range stats.Failures {
			failed[f.Stage] = f
		}
		for _, s := range stats.Stages {
			f := failed[s.Stage]
			fmt.Fprintf(tw, "%s\t%d\t%.1fs\t%.1fs\t%.1fs\t%d (%.1f%%)\n", s.Stage, s.Count, s.Avg, s.P50, s.P95, f.Failed, f.FailedPct)
		}
		tw.Flush()

		if len(stats.Throughput) > 0 {
			fmt.Fprintln(w)
			tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DAY\tSTARTED\tSUCCEEDED\tFAILED")
			for _, t := range stats.Throughput {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", t.Period, t.Started, t.Succeeded, t.Failed)
			}
			tw.Flush()
		}
		return nil
	},
}

// parseSince turns --since (a duration such as 24h, or an RFC 3339 time)
// into the lower bound the analytics queries take.
func parseSince(cmd *cobra.Command) (string, error) {
	raw, _ := cmd.Flags().GetString("since")
	if raw == "" {
		return "", nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d).UTC().Format(time.RFC3339), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	return "", fmt.Errorf("invalid --since %q: want a duration (24h) or an RFC 3339 time", raw)
}

func init() {
	statsCmd.Flags().String("since", "", "Only count events after this point (e.g. 168h or 2024-01-02T00:00:00Z)")
	statsCmd.Flags().String("format", "text", "Output format: text or json")
}
