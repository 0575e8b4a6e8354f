package stage

import (
	"context"

	appctx "github.com/lucasnoah/sonarfix/internal/context"
	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// SetupWorkspace creates the fix branch from the base branch.
type SetupWorkspace struct {
	Workspace Workspace
	Builder   *appctx.Builder
}

func (s *SetupWorkspace) Name() pipeline.StageName { return pipeline.StageSetupWorkspace }

func (s *SetupWorkspace) Run(ctx context.Context, st *pipeline.RunState) error {
	if st.Finding == nil {
		return missing(s.Name(), "finding")
	}

	branch := st.Branch
	if branch == "" {
		var err error
		branch, err = s.Builder.BranchName(st.Finding)
		if err != nil {
			return fault.Integration("branch name", err)
		}
	}
	if err := s.Workspace.Prepare(ctx, branch); err != nil {
		return classify(err, fault.Integration, "prepare workspace")
	}
	st.Branch = branch
	st.Logf("workspace ready on branch %s", branch)
	return nil
}
