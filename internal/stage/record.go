package stage

import (
	"context"

	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/records"
)

// StatusCompleted is the status written for a finding whose review was opened.
const StatusCompleted = "completed"

// RecordKeep adds the finding to the processed list so it is never selected
// again.
type RecordKeep struct {
	Records RecordStore
}

func (s *RecordKeep) Name() pipeline.StageName { return pipeline.StageRecordKeep }

func (s *RecordKeep) Run(ctx context.Context, st *pipeline.RunState) error {
	if st.Finding == nil {
		return missing(s.Name(), "finding")
	}
	if st.Review == nil {
		return missing(s.Name(), "review")
	}

	// Resuming after the append but before the checkpoint must not record
	// the finding twice.
	done, err := s.Records.Contains(st.Finding.Key)
	if err != nil {
		return fault.Integration("read processed records", err)
	}
	if done {
		st.Logf("%s already recorded", st.Finding.Key)
		return nil
	}

	var reviewer string
	if st.Fix != nil {
		reviewer = st.Fix.Reviewer
	}
	rec := records.FromFinding(st.Finding, StatusCompleted, st.Review.URL, reviewer)
	if err := s.Records.Append(rec); err != nil {
		return fault.Integration("append processed record", err)
	}
	st.Logf("recorded %s as %s", st.Finding.Key, StatusCompleted)
	return nil
}

// LaunchView opens the review link. It never fails the run.
type LaunchView struct {
	Opener Opener
}

func (s *LaunchView) Name() pipeline.StageName { return pipeline.StageLaunchView }

func (s *LaunchView) Run(ctx context.Context, st *pipeline.RunState) error {
	if s.Opener == nil {
		st.Logf("browser launch disabled")
		return nil
	}
	if st.Review == nil || st.Review.URL == "" {
		warn(ctx, st, "no review link to open", nil)
		return nil
	}
	if err := s.Opener.Open(ctx, st.Review.URL); err != nil {
		warn(ctx, st, "open review link", err)
		return nil
	}
	st.Logf("opened %s", st.Review.URL)
	return nil
}
