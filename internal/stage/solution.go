package stage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	appctx "github.com/lucasnoah/sonarfix/internal/context"
	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/fix"
	"github.com/lucasnoah/sonarfix/internal/llm"
	"github.com/lucasnoah/sonarfix/internal/logging"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// GenerateSolution asks the model how to fix the finding and picks the
// reviewer.
type GenerateSolution struct {
	Completer llm.Completer
	Builder   *appctx.Builder
	Identity  Identity
}

func (s *GenerateSolution) Name() pipeline.StageName { return pipeline.StageGenerateSolution }

func (s *GenerateSolution) Run(ctx context.Context, st *pipeline.RunState) error {
	f := st.Finding
	if f == nil {
		return missing(s.Name(), "finding")
	}

	system, user, err := s.Builder.SolutionPrompt(f)
	if err != nil {
		return fault.Integration("render solution prompt", err)
	}
	reply, err := s.Completer.Complete(ctx, system, user)
	if err != nil {
		return classify(err, fault.Transport, "generate solution")
	}

	sol := parseSolution(reply, f)
	if sol.Description == "" {
		warn(ctx, st, "model reply was not a usable solution, using a placeholder", nil)
		sol = defaultSolution(f)
	}

	sol.Reviewer, sol.ReviewerMapped = s.Identity.ResolveReviewer(f.Author)
	if !sol.ReviewerMapped {
		warn(ctx, st, fmt.Sprintf("no reviewer mapping for %q, using default reviewer", f.Author), nil)
	}

	st.Fix = sol
	st.Logf("solution for %s: %s", sol.FilePath, firstLine(sol.Description))
	logging.FromContext(ctx).Info("solution generated",
		zap.String("file", sol.FilePath),
		zap.Bool("reviewer_mapped", sol.ReviewerMapped))
	return nil
}

// parseSolution reads {filePath, codeDiff, description} from the model
// reply. Description is empty when the reply is unusable.
func parseSolution(reply string, f *pipeline.Finding) *pipeline.FixSolution {
	obj, ok := fix.ParseObject(reply)
	if !ok {
		return &pipeline.FixSolution{}
	}
	sol := &pipeline.FixSolution{
		FilePath:    str(obj["filePath"]),
		CodeDiff:    str(obj["codeDiff"]),
		Description: strings.TrimSpace(str(obj["description"])),
	}
	if sol.FilePath == "" {
		sol.FilePath = f.FilePath()
	}
	return sol
}

func defaultSolution(f *pipeline.Finding) *pipeline.FixSolution {
	return &pipeline.FixSolution{
		FilePath:    f.FilePath(),
		CodeDiff:    fmt.Sprintf("// TODO: fix SonarQube issue %s\n// %s", f.Key, f.Message),
		Description: "Fix SonarQube issue: " + f.Message,
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
