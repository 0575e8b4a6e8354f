package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	appctx "github.com/lucasnoah/sonarfix/internal/context"
	"github.com/lucasnoah/sonarfix/internal/effort"
	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/logging"
	"github.com/lucasnoah/sonarfix/internal/notify"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/review"
)

// CreateReview opens the review request, credits the finding's effort and
// tells the reviewer. Only the review request itself can fail the run.
type CreateReview struct {
	Reviews         review.Creator
	Builder         *appctx.Builder
	Effort          EffortRecorder
	Identity        Identity
	Notifier        Notifier
	UnassignedLabel string
	Floor           time.Duration // effort credited when the tracker has none; 0 uses effort.DefaultFloor
	Now             func() time.Time
}

func (s *CreateReview) Name() pipeline.StageName { return pipeline.StageCreateReview }

func (s *CreateReview) Run(ctx context.Context, st *pipeline.RunState) error {
	f := st.Finding
	switch {
	case f == nil:
		return missing(s.Name(), "finding")
	case st.Fix == nil:
		return missing(s.Name(), "solution")
	case st.Branch == "":
		return missing(s.Name(), "branch")
	}

	title, err := s.Builder.ReviewTitle(f)
	if err != nil {
		return fault.Integration("render review title", err)
	}
	desc, err := s.Builder.ReviewDescription(f, st.Fix)
	if err != nil {
		return fault.Integration("render review description", err)
	}

	res, err := s.Reviews.Create(ctx, review.Request{
		Branch:      st.Branch,
		Title:       title,
		Description: desc,
		Reviewer:    st.Fix.Reviewer,
	})
	if err != nil {
		return classify(err, fault.Integration, "create review")
	}

	result := &pipeline.ReviewResult{
		ID:            res.ID,
		URL:           res.URL,
		Title:         res.Title,
		Status:        res.Status,
		EffortMinutes: effortMinutes(f.Effort, s.Floor),
	}
	if result.Title == "" {
		result.Title = title
	}
	st.Review = result
	st.Logf("review %s opened: %s", result.ID, result.URL)
	logging.FromContext(ctx).Info("review created",
		zap.String("review_id", result.ID),
		zap.String("url", result.URL))

	if s.Effort != nil {
		total, err := s.Effort.Record(f.Effort)
		if err != nil {
			warn(ctx, st, "record effort", err)
		} else {
			result.TotalEffortMinutes = total
		}
	}

	s.notify(ctx, st)
	return nil
}

func (s *CreateReview) notify(ctx context.Context, st *pipeline.RunState) {
	if s.Notifier == nil {
		return
	}

	user := s.UnassignedLabel
	email, ok := s.Identity.EmailForToken(st.Fix.Reviewer)
	if ok {
		user = email
	} else {
		warn(ctx, st, "no email for reviewer "+st.Fix.Reviewer, nil)
	}

	var messagingID string
	if ok {
		if id, found := s.Identity.ResolveMessagingID(email); found {
			messagingID = id
		} else {
			warn(ctx, st, "no messaging id for "+email, nil)
		}
	}

	text, err := s.Builder.DirectMessage(st.Review.URL, st.Finding, st.Fix)
	if err != nil {
		warn(ctx, st, "render direct message", err)
		messagingID = ""
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	out := s.Notifier.Notify(ctx, notify.Notification{
		User:               user,
		MessagingID:        messagingID,
		Link:               st.Review.URL,
		Text:               text,
		EffortMinutes:      st.Review.EffortMinutes,
		TotalEffortMinutes: st.Review.TotalEffortMinutes,
		Timestamp:          now(),
	})
	if out.BroadcastErr != nil {
		warn(ctx, st, "broadcast notification not delivered", out.BroadcastErr)
	}
	if out.DirectErr != nil {
		warn(ctx, st, "direct message not delivered", out.DirectErr)
	}
}

// effortMinutes is the minutes credited for one fix: the tracker estimate,
// or the floor when the estimate is missing.
func effortMinutes(d, floor time.Duration) int {
	if d <= 0 {
		if floor <= 0 {
			floor = effort.DefaultFloor
		}
		return effort.Minutes(floor)
	}
	return effort.Minutes(d)
}
