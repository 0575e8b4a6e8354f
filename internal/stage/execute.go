package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appctx "github.com/lucasnoah/sonarfix/internal/context"
	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/logging"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// ExecuteFix applies the solution to the working tree, then commits and
// pushes the change. Git failures after the edit are warnings.
type ExecuteFix struct {
	Fixer     Fixer
	Workspace Workspace
	Builder   *appctx.Builder
}

func (s *ExecuteFix) Name() pipeline.StageName { return pipeline.StageExecuteFix }

func (s *ExecuteFix) Run(ctx context.Context, st *pipeline.RunState) error {
	if st.Finding == nil {
		return missing(s.Name(), "finding")
	}
	if st.Fix == nil {
		return missing(s.Name(), "solution")
	}

	res, err := s.Fixer.Apply(ctx, st.Finding, st.Fix)
	if err != nil {
		return classify(err, fault.Integration, "apply fix")
	}

	st.Fix.FileUpdated = res.Updated
	st.Fix.ExecutionSummary = res.Summary
	if !res.Updated {
		st.Fix.ExecutionSummary = "file unchanged: " + res.Reason
		warn(ctx, st, "fix left "+st.Fix.FilePath+" unchanged: "+res.Reason, nil)
		return nil
	}
	st.Logf("updated %s", res.Path)

	path := res.RelPath
	if path == "" {
		path = res.Path
	}
	summary := res.Summary
	if summary == "" {
		summary = st.Fix.Description
	}
	msg, err := s.Builder.CommitMessage(st.Finding, summary)
	if err != nil {
		warn(ctx, st, "render commit message", err)
		return nil
	}
	// A resumed run may find the checkout moved off the fix branch.
	head, err := s.Workspace.CurrentBranch()
	if err != nil {
		warn(ctx, st, "resolve checked-out branch", err)
		return nil
	}
	if head != st.Branch {
		warn(ctx, st, fmt.Sprintf("checkout is on %q, not %q; fix left uncommitted", head, st.Branch), nil)
		return nil
	}
	hash, err := s.Workspace.Commit([]string{path}, msg)
	if err != nil {
		warn(ctx, st, "commit fix", err)
		return nil
	}
	st.Logf("committed %s", shortHash(hash))

	if err := s.Workspace.Push(ctx, st.Branch); err != nil {
		warn(ctx, st, "push "+st.Branch, err)
		return nil
	}
	logging.FromContext(ctx).Info("fix committed",
		zap.String("commit", hash),
		zap.String("branch", st.Branch))
	return nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
