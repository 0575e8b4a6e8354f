package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/db"
	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/logging"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/stage"
	"github.com/lucasnoah/sonarfix/internal/telemetry"
)

// EventLog receives run-event ledger rows.
type EventLog interface {
	LogRunEvent(e db.RunEvent) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	RunFinished(outcome string)
	FindingSelected()
	EffortRecorded(minutes int)
}

// Orchestrator drives a RunState through the stage sequence, checkpointing
// after every stage.
type Orchestrator struct {
	store   *pipeline.Store
	stages  map[pipeline.StageName]stage.Stage
	events  EventLog
	metrics Recorder
	logger  *zap.Logger
	tracer  trace.Tracer
	newID   func() string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithEventLog writes every transition to the run-event ledger.
func WithEventLog(l EventLog) Option {
	return func(o *Orchestrator) { o.events = l }
}

// WithMetrics records stage timings and run outcomes.
func WithMetrics(r Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithIDFunc replaces the run id generator (for testing).
func WithIDFunc(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// NewOrchestrator creates an Orchestrator over the given stages.
func NewOrchestrator(store *pipeline.Store, stages []stage.Stage, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		stages: make(map[pipeline.StageName]stage.Stage, len(stages)),
		logger: zap.NewNop(),
		tracer: telemetry.Tracer(),
		newID:  func() string { return uuid.NewString() },
	}
	for _, s := range stages {
		o.stages[s.Name()] = s
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Report is the final summary of a run.
type Report struct {
	RunID           string                 `json:"run_id"`
	Outcome         string                 `json:"outcome"`
	Error           string                 `json:"error,omitempty"`
	ErrorKind       fault.Kind             `json:"error_kind,omitempty"`
	CurrentStage    pipeline.StageName     `json:"current_stage"`
	CompletedStages []pipeline.StageName   `json:"completed_stages"`
	Branch          string                 `json:"branch,omitempty"`
	Finding         *pipeline.Finding      `json:"finding,omitempty"`
	Review          *pipeline.ReviewResult `json:"review,omitempty"`
}

// ReportFor summarises a checkpoint.
func ReportFor(st *pipeline.RunState) *Report {
	return &Report{
		RunID:           st.RunID,
		Outcome:         st.Outcome,
		Error:           st.Error,
		ErrorKind:       st.ErrorKind,
		CurrentStage:    st.CurrentStage,
		CompletedStages: st.CompletedStages,
		Branch:          st.Branch,
		Finding:         st.Finding,
		Review:          st.Review,
	}
}

// Run starts a new run and drives it to a terminal state. The returned
// error covers checkpoint failures and interruption; stage failures end up
// in the report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	st, err := o.store.Create(o.newID())
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	o.log(db.RunEvent{RunID: st.RunID, Event: db.EventRunStarted})
	o.logger.Info("run started", logging.Run(st.RunID))
	return o.drive(ctx, st)
}

// Resume re-enters a run at its checkpointed stage. A run that already
// finished returns its stored report without running anything.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (*Report, error) {
	st, err := o.store.Get(runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if st.CurrentStage.Terminal() {
		return ReportFor(st), nil
	}
	o.log(db.RunEvent{RunID: st.RunID, Event: db.EventRunResumed, Stage: string(st.CurrentStage), Finding: findingKey(st)})
	o.logger.Info("run resumed", logging.Run(st.RunID), logging.Stage(string(st.CurrentStage)))
	return o.drive(ctx, st)
}

// Status returns the report for a stored run.
func (o *Orchestrator) Status(runID string) (*Report, error) {
	st, err := o.store.Get(runID)
	if err != nil {
		return nil, err
	}
	return ReportFor(st), nil
}

// StatusAll returns reports for every stored run, newest first.
func (o *Orchestrator) StatusAll(outcome string) ([]Report, error) {
	runs, err := o.store.List(outcome)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0, len(runs))
	for i := range runs {
		out = append(out, *ReportFor(&runs[i]))
	}
	return out, nil
}

func (o *Orchestrator) drive(ctx context.Context, st *pipeline.RunState) (*Report, error) {
	logger := o.logger.With(logging.Run(st.RunID))
	ctx, span := o.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run_id", st.RunID)))
	defer span.End()

	for !st.CurrentStage.Terminal() {
		if err := ctx.Err(); err != nil {
			logger.Warn("run interrupted", logging.Stage(string(st.CurrentStage)), zap.Error(err))
			return ReportFor(st), fmt.Errorf("run %s interrupted at %s: %w", st.RunID, st.CurrentStage, err)
		}

		name := st.CurrentStage
		s, ok := o.stages[name]
		if !ok {
			st.Fail(fmt.Errorf("no stage registered for %s", name))
		} else if interrupted := o.runStage(ctx, logger, st, s); interrupted != nil {
			if err := o.store.Save(st); err != nil {
				return nil, err
			}
			return ReportFor(st), fmt.Errorf("run %s interrupted at %s: %w", st.RunID, name, interrupted)
		}

		o.transition(st, name)
		if err := o.store.Save(st); err != nil {
			return nil, err
		}
	}

	o.log(db.RunEvent{RunID: st.RunID, Event: db.EventRunFinished, Finding: findingKey(st), Detail: st.Outcome})
	if o.metrics != nil {
		o.metrics.RunFinished(st.Outcome)
	}
	span.SetAttributes(attribute.String("outcome", st.Outcome))
	if st.Outcome == pipeline.OutcomeFailed {
		span.SetStatus(codes.Error, st.Error)
		logger.Error("run failed", zap.String("error", st.Error), zap.String("kind", string(st.ErrorKind)))
	} else {
		logger.Info("run finished", zap.String("outcome", st.Outcome))
	}
	return ReportFor(st), nil
}

// runStage executes one stage. It returns a non-nil error only when the
// stage was cut short by context cancellation, in which case the run stays
// at the same stage for a later resume.
func (o *Orchestrator) runStage(ctx context.Context, logger *zap.Logger, st *pipeline.RunState, s stage.Stage) error {
	name := string(s.Name())
	logger = logger.With(logging.Stage(name))
	if st.Finding != nil {
		logger = logger.With(logging.Finding(st.Finding.Key))
	}
	ctx = logging.WithLogger(ctx, logger)
	ctx, span := o.tracer.Start(ctx, "stage."+name)
	defer span.End()
	if st.Finding != nil {
		span.SetAttributes(attribute.String("finding", st.Finding.Key))
	}

	o.log(db.RunEvent{RunID: st.RunID, Event: db.EventStageStarted, Stage: name, Finding: findingKey(st)})
	logger.Debug("stage started")

	seen := len(st.Messages)
	start := time.Now()
	err := s.Run(ctx, st)
	elapsed := time.Since(start)
	if err != nil && ctx.Err() == nil && !fault.KindOf(err).Fatal() {
		st.Logf("%s%v", stage.WarningPrefix, err)
		logger.Warn("non-fatal stage error", zap.Error(err))
		err = nil
	}
	o.logWarnings(st, name, seen)

	if err != nil && ctx.Err() != nil {
		span.SetStatus(codes.Error, "interrupted")
		return ctx.Err()
	}

	if err != nil {
		st.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log(db.RunEvent{
			RunID: st.RunID, Event: db.EventStageFailed, Stage: name, Finding: findingKey(st),
			DurationMs: elapsed.Milliseconds(), Detail: err.Error(),
		})
		logger.Error("stage failed", zap.Error(err), zap.Duration("duration", elapsed))
		return nil
	}

	st.CompletedStages = append(st.CompletedStages, s.Name())
	o.log(db.RunEvent{
		RunID: st.RunID, Event: db.EventStageCompleted, Stage: name, Finding: findingKey(st),
		DurationMs: elapsed.Milliseconds(),
	})
	if o.metrics != nil {
		o.metrics.ObserveStage(name, elapsed)
		switch s.Name() {
		case pipeline.StageAnalyze:
			if st.Finding != nil {
				o.metrics.FindingSelected()
			}
		case pipeline.StageCreateReview:
			if st.Review != nil {
				o.metrics.EffortRecorded(st.Review.EffortMinutes)
			}
		}
	}
	logger.Info("stage completed", zap.Duration("duration", elapsed))
	return nil
}

// transition moves st past the stage that just ran.
func (o *Orchestrator) transition(st *pipeline.RunState, ran pipeline.StageName) {
	switch {
	case st.Failed():
		st.CurrentStage = pipeline.StageFailed
		st.Outcome = pipeline.OutcomeFailed
	case ran == pipeline.StageAnalyze && st.Finding == nil:
		st.CurrentStage = pipeline.StageDone
		st.Outcome = pipeline.OutcomeNothingToProcess
	default:
		st.CurrentStage = ran.Next()
		if st.CurrentStage == pipeline.StageDone {
			st.Outcome = pipeline.OutcomeSuccess
		}
	}
}

// logWarnings copies warnings a stage appended to the trail into the ledger.
func (o *Orchestrator) logWarnings(st *pipeline.RunState, stageName string, from int) {
	for _, msg := range st.Messages[from:] {
		if !strings.HasPrefix(msg, stage.WarningPrefix) {
			continue
		}
		o.log(db.RunEvent{
			RunID: st.RunID, Event: db.EventWarning, Stage: stageName, Finding: findingKey(st),
			Detail: strings.TrimPrefix(msg, stage.WarningPrefix),
		})
	}
}

func (o *Orchestrator) log(e db.RunEvent) {
	if o.events == nil {
		return
	}
	if err := o.events.LogRunEvent(e); err != nil {
		o.logger.Warn("ledger write failed", zap.String("event", e.Event), zap.Error(err))
	}
}

func findingKey(st *pipeline.RunState) string {
	if st.Finding == nil {
		return ""
	}
	return st.Finding.Key
}
