package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/config"
	"github.com/lucasnoah/sonarfix/internal/metrics"
	"github.com/lucasnoah/sonarfix/internal/orchestrator"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the next actionable finding",
	Long: `Select the oldest open finding that has an author and has not been processed,
generate a fix, push it on a new branch, open a review request and notify the
reviewer.

With --dry-run only the selection step runs and the chosen finding is printed;
nothing is written anywhere.

The command exits non-zero only when the run fails. An interrupted run
(Ctrl-C) is checkpointed and can be continued with 'sonarfix resume'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			return runDry(cmd)
		}
		return runPipeline(cmd, func(ctx context.Context, o *orchestrator.Orchestrator) (*orchestrator.Report, error) {
			return o.Run(ctx)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue an interrupted run from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, func(ctx context.Context, o *orchestrator.Orchestrator) (*orchestrator.Report, error) {
			return o.Resume(ctx, args[0])
		})
	},
}

func runPipeline(cmd *cobra.Command, drive func(context.Context, *orchestrator.Orchestrator) (*orchestrator.Report, error)) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if errs := config.Validate(a.cfg); len(errs) > 0 {
		for _, e := range errs {
			a.logger.Error("invalid configuration", zap.String("field", e.Field), zap.String("problem", e.Message))
		}
		return fmt.Errorf("config has %d validation error(s); see 'sonarfix config validate'", len(errs))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled: a.cfg.Telemetry.Enabled,
		Writer:  cmd.ErrOrStderr(),
		Service: "sonarfix",
		Version: version,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	m := metrics.New()
	noBrowser, _ := cmd.Flags().GetBool("no-browser")
	orch, sessions, err := a.orchestrator(ctx, runOptions{noBrowser: noBrowser}, m)
	if err != nil {
		return err
	}
	defer sessions.Close()

	report, runErr := drive(ctx, orch)
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if err := m.Push(context.Background(), url, a.cfg.Metrics.Job); err != nil {
			a.logger.Warn("metrics push failed", zap.Error(err))
		}
	}
	if report != nil {
		format, _ := cmd.Flags().GetString("format")
		if err := printReport(cmd.OutOrStdout(), format, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		if report != nil {
			return fmt.Errorf("%w (resume with: sonarfix resume %s)", runErr, report.RunID)
		}
		return runErr
	}
	if report.Outcome == pipeline.OutcomeFailed {
		return fmt.Errorf("run %s failed at %s: %s", report.RunID, lastStage(report), report.Error)
	}
	return nil
}

func runDry(cmd *cobra.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := a.sessions()
	defer sessions.Close()

	f, err := a.selector(sessions).Select(ctx, a.filter())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		data, _ := json.MarshalIndent(f, "", "  ")
		fmt.Fprintln(w, string(data))
		return nil
	}
	if f == nil {
		fmt.Fprintln(w, "No actionable finding.")
		return nil
	}
	fmt.Fprintf(w, "Key:       %s\n", f.Key)
	fmt.Fprintf(w, "Rule:      %s\n", f.Rule)
	fmt.Fprintf(w, "Severity:  %s\n", f.Severity)
	fmt.Fprintf(w, "Type:      %s\n", f.Type)
	fmt.Fprintf(w, "Location:  %s:%d\n", f.FilePath(), f.Line)
	fmt.Fprintf(w, "Author:    %s\n", f.Author)
	fmt.Fprintf(w, "Message:   %s\n", f.Message)
	return nil
}

func printReport(w io.Writer, format string, r *orchestrator.Report) error {
	if format == "json" {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "Run:       %s\n", r.RunID)
	outcome := r.Outcome
	if outcome == "" {
		outcome = "running at " + string(r.CurrentStage)
	}
	fmt.Fprintf(w, "Outcome:   %s\n", outcome)
	if r.Finding != nil {
		fmt.Fprintf(w, "Finding:   %s (%s, %s:%d)\n", r.Finding.Key, r.Finding.Rule, r.Finding.FilePath(), r.Finding.Line)
	}
	if r.Branch != "" {
		fmt.Fprintf(w, "Branch:    %s\n", r.Branch)
	}
	if r.Review != nil {
		fmt.Fprintf(w, "Review:    %s\n", r.Review.URL)
		fmt.Fprintf(w, "Effort:    %dmin (total %dmin)\n", r.Review.EffortMinutes, r.Review.TotalEffortMinutes)
	}
	if len(r.CompletedStages) > 0 {
		names := make([]string, len(r.CompletedStages))
		for i, s := range r.CompletedStages {
			names[i] = string(s)
		}
		fmt.Fprintf(w, "Stages:    %s\n", strings.Join(names, " → "))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     [%s] %s\n", r.ErrorKind, r.Error)
	}
	return nil
}

// lastStage is the stage that was running when the run failed.
func lastStage(r *orchestrator.Report) pipeline.StageName {
	if n := len(r.CompletedStages); n > 0 {
		return r.CompletedStages[n-1].Next()
	}
	return pipeline.StageAnalyze
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Only select and print the next finding")
	runCmd.Flags().Bool("no-browser", false, "Do not open the review link when done")
	runCmd.Flags().String("format", "text", "Output format: text or json")
	resumeCmd.Flags().Bool("no-browser", false, "Do not open the review link when done")
	resumeCmd.Flags().String("format", "text", "Output format: text or json")
}
