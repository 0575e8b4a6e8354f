// Package stage implements the individual pipeline steps. Each stage reads
// and mutates one RunState; a returned error is fatal and the orchestrator
// turns it into the run's error marker.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appctx "github.com/lucasnoah/sonarfix/internal/context"
	"github.com/lucasnoah/sonarfix/internal/fix"
	"github.com/lucasnoah/sonarfix/internal/llm"
	"github.com/lucasnoah/sonarfix/internal/logging"
	"github.com/lucasnoah/sonarfix/internal/notify"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/records"
	"github.com/lucasnoah/sonarfix/internal/review"
	"github.com/lucasnoah/sonarfix/internal/selector"
)

// WarningPrefix marks non-fatal problems in RunState.Messages.
const WarningPrefix = "warning: "

// Stage is one step of the pipeline.
type Stage interface {
	Name() pipeline.StageName
	Run(ctx context.Context, st *pipeline.RunState) error
}

// Selector finds the next actionable finding.
type Selector interface {
	Select(ctx context.Context, f selector.Filter) (*pipeline.Finding, error)
}

// Workspace is the git checkout fixes are made in.
type Workspace interface {
	Prepare(ctx context.Context, branch string) error
	CurrentBranch() (string, error)
	Commit(paths []string, message string) (string, error)
	Push(ctx context.Context, branch string) error
}

// Fixer edits the target file.
type Fixer interface {
	Apply(ctx context.Context, f *pipeline.Finding, sol *pipeline.FixSolution) (*fix.Result, error)
}

// Identity maps finding authors to reviewers and message destinations.
type Identity interface {
	ResolveReviewer(token string) (string, bool)
	EmailForToken(token string) (string, bool)
	ResolveMessagingID(email string) (string, bool)
}

// EffortRecorder adds a fix's effort to the running total.
type EffortRecorder interface {
	Record(d time.Duration) (int, error)
}

// Notifier announces a new review request.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) notify.Outcome
}

// RecordStore keeps the processed-finding list.
type RecordStore interface {
	Contains(key string) (bool, error)
	Append(rec records.Record) error
}

// Opener shows a link to the user.
type Opener interface {
	Open(ctx context.Context, link string) error
}

// Deps is everything the stages need. Notifier and Opener may be nil.
type Deps struct {
	Selector        Selector
	Filter          selector.Filter
	Workspace       Workspace
	Builder         *appctx.Builder
	Completer       llm.Completer
	Fixer           Fixer
	Identity        Identity
	Reviews         review.Creator
	Effort          EffortRecorder
	EffortFloor     time.Duration
	Notifier        Notifier
	UnassignedLabel string
	Records         RecordStore
	Opener          Opener
}

// All returns the stages in pipeline order.
func All(d Deps) []Stage {
	return []Stage{
		&Analyze{Selector: d.Selector, Filter: d.Filter},
		&SetupWorkspace{Workspace: d.Workspace, Builder: d.Builder},
		&GenerateSolution{Completer: d.Completer, Builder: d.Builder, Identity: d.Identity},
		&ExecuteFix{Fixer: d.Fixer, Workspace: d.Workspace, Builder: d.Builder},
		&CreateReview{
			Reviews:         d.Reviews,
			Builder:         d.Builder,
			Effort:          d.Effort,
			Identity:        d.Identity,
			Notifier:        d.Notifier,
			UnassignedLabel: d.UnassignedLabel,
			Floor:           d.EffortFloor,
		},
		&RecordKeep{Records: d.Records},
		&LaunchView{Opener: d.Opener},
	}
}

// ErrMissingInput is returned when a stage runs without the output of an
// earlier one.
var ErrMissingInput = errors.New("missing stage input")

func missing(stage pipeline.StageName, what string) error {
	return fmt.Errorf("%s: %w: %s", stage, ErrMissingInput, what)
}

// warn records a non-fatal problem on the run trail and the log.
func warn(ctx context.Context, st *pipeline.RunState, msg string, err error) {
	if err != nil {
		st.Logf("%s%s: %v", WarningPrefix, msg, err)
		logging.FromContext(ctx).Warn(msg, zap.Error(err))
		return
	}
	st.Logf("%s%s", WarningPrefix, msg)
	logging.FromContext(ctx).Warn(msg)
}
