package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect or reset the processed-finding list",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed findings and the accumulated effort",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.records.List()
		if err != nil {
			return err
		}
		total, err := a.effort.Total()
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(map[string]any{
				"records":            recs,
				"totalEffortMinutes": total,
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No processed findings.")
		} else {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tRULE\tSEVERITY\tPROCESSED\tSTATUS\tREVIEW")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Key, r.Rule, r.Severity, r.ProcessedDate, r.Status, r.ReviewURL)
			}
			tw.Flush()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nTotal effort: %d min\n", total)
		return nil
	},
}

var recordsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every processed finding so it can be selected again",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("this clears the processed-finding list; re-run with --yes to confirm")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.records.Reset(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Processed-finding list cleared (%s).\n", a.records.Path())
		return nil
	},
}

func init() {
	recordsListCmd.Flags().String("format", "text", "Output format: text or json")
	recordsResetCmd.Flags().Bool("yes", false, "Confirm the reset")
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsResetCmd)
}
