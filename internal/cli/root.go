package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sonarfix",
	Short: "Automated SonarQube finding remediation",
	Long: `sonarfix picks the next open SonarQube finding, asks a language model for a
fix, commits it on a fresh branch, opens a review request and notifies the
reviewer.

Run state is checkpointed under ~/.sonarfix/ (JSON per run, SQLite event
ledger), so an interrupted run can be resumed from its last stage.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to sonarfix.yaml (default ./sonarfix.yaml, then ~/.sonarfix/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
}
