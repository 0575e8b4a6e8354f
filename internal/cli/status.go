package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/sonarfix/internal/orchestrator"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarise stored runs, processed findings and effort",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		reports, err := orchestrator.NewOrchestrator(a.store, nil).StatusAll("")
		if err != nil {
			return err
		}
		keys, err := a.records.Keys()
		if err != nil {
			return err
		}
		total, err := a.effort.Total()
		if err != nil {
			return err
		}

		counts := map[string]int{}
		for _, r := range reports {
			outcome := r.Outcome
			if outcome == "" {
				outcome = "running"
			}
			counts[outcome]++
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Runs:               %d (success %d, nothing to process %d, failed %d, running %d)\n",
			len(reports), counts[pipeline.OutcomeSuccess], counts[pipeline.OutcomeNothingToProcess],
			counts[pipeline.OutcomeFailed], counts["running"])
		fmt.Fprintf(w, "Processed findings: %d\n", len(keys))
		fmt.Fprintf(w, "Total effort:       %d min\n", total)
		fmt.Fprintf(w, "Checkpoints:        %s\n", a.store.BaseDir())
		if len(reports) > 0 {
			latest := reports[0]
			outcome := latest.Outcome
			if outcome == "" {
				outcome = "running at " + string(latest.CurrentStage)
			}
			fmt.Fprintf(w, "Latest run:         %s (%s)\n", latest.RunID, outcome)
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect checkpointed runs",
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := orchestrator.NewOrchestrator(a.store, nil).Status(args[0])
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return printReport(cmd.OutOrStdout(), format, report)
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		outcome, _ := cmd.Flags().GetString("outcome")
		reports, err := orchestrator.NewOrchestrator(a.store, nil).StatusAll(outcome)
		if err != nil {
			return err
		}

		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			data, _ := json.MarshalIndent(reports, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(reports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-36s %-18s %-16s %-24s %s\n", "RUN", "OUTCOME", "STAGE", "FINDING", "REVIEW")
		fmt.Fprintf(w, "%-36s %-18s %-16s %-24s %s\n",
			strings.Repeat("-", 36),
			strings.Repeat("-", 18),
			strings.Repeat("-", 16),
			strings.Repeat("-", 24),
			strings.Repeat("-", 6))
		for _, r := range reports {
			outcome := r.Outcome
			if outcome == "" {
				outcome = "running"
			}
			finding := ""
			if r.Finding != nil {
				finding = r.Finding.Key
				if len(finding) > 24 {
					finding = finding[:21] + "..."
				}
			}
			link := ""
			if r.Review != nil {
				link = r.Review.URL
			}
			fmt.Fprintf(w, "%-36s %-18s %-16s %-24s %s\n", r.RunID, outcome, r.CurrentStage, finding, link)
		}
		return nil
	},
}

var runsAbandonCmd = &cobra.Command{
	Use:   "abandon <run-id>",
	Short: "Mark an unfinished run as failed so it is no longer resumable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var at pipeline.StageName
		err = a.store.Update(args[0], func(st *pipeline.RunState) {
			if st.CurrentStage.Terminal() {
				return
			}
			at = st.CurrentStage
			st.Fail(fmt.Errorf("abandoned at %s", at))
			st.CurrentStage = pipeline.StageFailed
			st.Outcome = pipeline.OutcomeFailed
		})
		if err != nil {
			return err
		}
		if at == "" {
			return fmt.Errorf("run %s already finished", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Run %s abandoned at %s.\n", args[0], at)
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to delete run %s without --yes", args[0])
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Run %s deleted.\n", args[0])
		return nil
	},
}

func init() {
	runsDeleteCmd.Flags().Bool("yes", false, "Confirm the deletion")
	runsCmd.AddCommand(runsAbandonCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsListCmd.Flags().String("format", "text", "Output format: text or json")
	runsListCmd.Flags().String("outcome", "", "Only show runs with this outcome (success, failed, nothing_to_process, running)")
	runsShowCmd.Flags().String("format", "text", "Output format: text or json")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}
