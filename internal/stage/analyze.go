package stage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/logging"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/selector"
)

// Analyze picks the finding the run works on. Leaving Finding nil means
// there is nothing to process.
type Analyze struct {
	Selector Selector
	Filter   selector.Filter
}

func (s *Analyze) Name() pipeline.StageName { return pipeline.StageAnalyze }

func (s *Analyze) Run(ctx context.Context, st *pipeline.RunState) error {
	f, err := s.Selector.Select(ctx, s.Filter)
	if err != nil {
		return classify(err, fault.Transport, "select finding")
	}
	if f == nil {
		st.Logf("no actionable finding")
		return nil
	}
	st.Finding = f
	st.Logf("selected %s (%s, %s) in %s", f.Key, f.Rule, f.Severity, f.Component)
	logging.FromContext(ctx).Info("finding selected",
		logging.Finding(f.Key),
		zap.String("rule", f.Rule),
		zap.String("author", f.Author))
	return nil
}

// classify keeps an error's existing kind and wraps unclassified errors
// with wrap.
func classify(err error, wrap func(string, error) error, op string) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	return wrap(op, err)
}
