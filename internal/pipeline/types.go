package pipeline

import (
	"time"

	"github.com/lucasnoah/sonarfix/internal/fault"
)

// StageName identifies a pipeline state.
type StageName string

const (
	StageAnalyze          StageName = "Analyze"
	StageSetupWorkspace   StageName = "SetupWorkspace"
	StageGenerateSolution StageName = "GenerateSolution"
	StageExecuteFix       StageName = "ExecuteFix"
	StageCreateReview     StageName = "CreateReview"
	StageRecordKeep       StageName = "RecordKeep"
	StageLaunchView       StageName = "LaunchView"
	StageDone             StageName = "Done"
	StageFailed           StageName = "Failed"
)

// Sequence is the fixed order of working stages. Done follows the last entry.
var Sequence = []StageName{
	StageAnalyze,
	StageSetupWorkspace,
	StageGenerateSolution,
	StageExecuteFix,
	StageCreateReview,
	StageRecordKeep,
	StageLaunchView,
}

// Terminal reports whether no further stage runs from s.
func (s StageName) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Next returns the stage that follows s on success.
func (s StageName) Next() StageName {
	for i, name := range Sequence {
		if name == s && i+1 < len(Sequence) {
			return Sequence[i+1]
		}
	}
	return StageDone
}

// Run outcomes.
const (
	OutcomeSuccess          = "success"
	OutcomeNothingToProcess = "nothing_to_process"
	OutcomeFailed           = "failed"
)

// RunState is the persisted state of one pipeline run. Stages mutate it in place.
type RunState struct {
	RunID           string        `json:"run_id"`
	Messages        []string      `json:"messages"`
	CurrentStage    StageName     `json:"current_stage"`
	Finding         *Finding      `json:"finding,omitempty"`
	Branch          string        `json:"branch,omitempty"`
	Fix             *FixSolution  `json:"fix,omitempty"`
	Review          *ReviewResult `json:"review,omitempty"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       fault.Kind    `json:"error_kind,omitempty"`
	CompletedStages []StageName   `json:"completed_stages"`
	Outcome         string        `json:"outcome,omitempty"` // "", "success", "nothing_to_process", "failed"
	CreatedAt       string        `json:"created_at"`
	UpdatedAt       string        `json:"updated_at"`
}

// Logf appends a message to the run's trail.
func (s *RunState) Logf(format string, args ...interface{}) {
	s.Messages = append(s.Messages, sprintf(format, args...))
}

// Fail sets the error marker. The first failure wins.
func (s *RunState) Fail(err error) {
	if s.Error != "" || err == nil {
		return
	}
	s.Error = err.Error()
	s.ErrorKind = fault.KindOf(err)
	s.Messages = append(s.Messages, "error: "+s.Error)
}

// Failed reports whether the error marker is set.
func (s *RunState) Failed() bool {
	return s.Error != ""
}

// Completed reports whether stage already finished in this run.
func (s *RunState) Completed(stage StageName) bool {
	for _, c := range s.CompletedStages {
		if c == stage {
			return true
		}
	}
	return false
}

// Finding is one static-analysis issue as returned by the tracker.
type Finding struct {
	Key          string        `json:"key"`
	Rule         string        `json:"rule"`
	Severity     string        `json:"severity"`
	Type         string        `json:"type,omitempty"`
	Component    string        `json:"component"`
	Line         int           `json:"line,omitempty"`
	Message      string        `json:"message"`
	Author       string        `json:"author"`
	CreationDate string        `json:"creationDate"`
	Status       string        `json:"status"`
	EffortText   string        `json:"effortText,omitempty"`
	Effort       time.Duration `json:"effort"`
}

// FilePath strips the "<project>:" prefix from a component key.
func (f *Finding) FilePath() string {
	for i := 0; i < len(f.Component); i++ {
		if f.Component[i] == ':' {
			return f.Component[i+1:]
		}
	}
	return f.Component
}

// FixSolution is the generated remediation for a finding.
type FixSolution struct {
	FilePath         string `json:"filePath"`
	CodeDiff         string `json:"codeDiff,omitempty"`
	Description      string `json:"description"`
	Reviewer         string `json:"reviewer"`
	ReviewerMapped   bool   `json:"reviewerMapped"`
	ExecutionSummary string `json:"executionSummary,omitempty"`
	FileUpdated      bool   `json:"fileUpdated"`
}

// ReviewResult describes the review request opened for a fix.
type ReviewResult struct {
	ID                 string `json:"id"`
	URL                string `json:"url"`
	Title              string `json:"title"`
	Status             string `json:"status"`
	EffortMinutes      int    `json:"effortMinutes"`
	TotalEffortMinutes int    `json:"totalEffortMinutes"`
}
