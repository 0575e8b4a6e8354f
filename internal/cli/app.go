package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/config"
	appctx "github.com/lucasnoah/sonarfix/internal/context"
	"github.com/lucasnoah/sonarfix/internal/db"
	"github.com/lucasnoah/sonarfix/internal/effort"
	"github.com/lucasnoah/sonarfix/internal/fix"
	"github.com/lucasnoah/sonarfix/internal/identity"
	"github.com/lucasnoah/sonarfix/internal/launch"
	"github.com/lucasnoah/sonarfix/internal/llm"
	"github.com/lucasnoah/sonarfix/internal/logging"
	"github.com/lucasnoah/sonarfix/internal/metrics"
	"github.com/lucasnoah/sonarfix/internal/notify"
	"github.com/lucasnoah/sonarfix/internal/orchestrator"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/prompt"
	"github.com/lucasnoah/sonarfix/internal/records"
	"github.com/lucasnoah/sonarfix/internal/review"
	"github.com/lucasnoah/sonarfix/internal/selector"
	"github.com/lucasnoah/sonarfix/internal/session"
	"github.com/lucasnoah/sonarfix/internal/stage"
	"github.com/lucasnoah/sonarfix/internal/workspace"
)

// app holds what every command shares: config, logger and the local stores.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *pipeline.Store
	records *records.Store
	effort  *effort.Accumulator
	ledger  *db.DB
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   pipeline.NewStore(cfg.Checkpoints),
		records: records.NewStore(cfg.Records.Path),
		effort:  effort.New(cfg.Effort.Path, floor(cfg)),
	}, nil
}

func (a *app) Close() {
	if a.ledger != nil {
		a.ledger.Close()
	}
	_ = a.logger.Sync()
}

// openLedger opens and migrates the event ledger. Runs proceed without one
// when it is unavailable; only commands that read it treat that as an error.
func (a *app) openLedger() (*db.DB, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	database, err := db.Open(a.cfg.Ledger.Driver, a.cfg.Ledger.DSN)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	a.ledger = database
	return database, nil
}

func (a *app) sessions() *session.Manager {
	return session.NewManager(session.Options{
		Providers:      a.cfg.Providers,
		ConnectTimeout: a.cfg.Timeouts.Connect,
		InvokeTimeout:  a.cfg.Timeouts.Invoke,
		Logger:         a.logger,
		ClientName:     "sonarfix",
		ClientVersion:  version,
	})
}

func (a *app) selector(sessions *session.Manager) *selector.Selector {
	s := a.cfg.Selector
	opts := []selector.Option{
		selector.WithLogger(a.logger.Named("selector")),
		selector.WithPageRate(s.PagesPerSecond),
	}
	if s.Capability != "" {
		opts = append(opts, selector.WithCapability(s.Capability))
	}
	return selector.New(sessions, s.Provider, a.records, opts...)
}

func (a *app) filter() selector.Filter {
	s := a.cfg.Selector
	return selector.Filter{
		ProjectKey: s.ProjectKey,
		Branch:     s.Branch,
		Severities: s.Severities,
		Types:      s.Types,
		Statuses:   s.Statuses,
		Sort:       s.Sort,
		Ascending:  s.Ascending,
		PageSize:   s.PageSize,
		MaxPages:   s.MaxPages,
	}
}

// builder applies inline template overrides from the config. Files in
// <state_dir>/templates override the built-in text for everything else.
func (a *app) builder() *appctx.Builder {
	b := appctx.NewBuilder(filepath.Join(a.cfg.StateDir, "templates"), a.cfg.Review.WorkItemID)
	for name, tmpl := range map[string]string{
		prompt.Branch:            a.cfg.Workspace.BranchTemplate,
		prompt.Commit:            a.cfg.Workspace.CommitTemplate,
		prompt.ReviewTitle:       a.cfg.Review.TitleTemplate,
		prompt.ReviewDescription: a.cfg.Review.DescriptionTemplate,
		prompt.DirectMessage:     a.cfg.Notify.MessageTemplate,
	} {
		if tmpl != "" {
			b.WithTemplate(name, tmpl)
		}
	}
	return b
}

func (a *app) workspace() *workspace.Workspace {
	w := a.cfg.Workspace
	return workspace.New(workspace.Options{
		RepoPath:    w.RepoPath,
		BaseBranch:  w.BaseBranch,
		Remote:      w.Remote,
		Pull:        w.Pull,
		Push:        w.Push,
		AuthorName:  w.AuthorName,
		AuthorEmail: w.AuthorEmail,
		Username:    w.Username,
		Token:       w.Token,
		Logger:      a.logger.Named("workspace"),
	})
}

func (a *app) reviews(ctx context.Context, sessions *session.Manager) (review.Creator, error) {
	r := a.cfg.Review
	var c review.Creator
	switch r.Backend {
	case "github":
		gh, err := review.NewGitHub(ctx, review.GitHubOptions{
			Owner:        r.GitHub.Owner,
			Repo:         r.GitHub.Repo,
			Token:        r.GitHub.Token,
			BaseURL:      r.GitHub.BaseURL,
			TargetBranch: r.TargetBranch,
			Labels:       r.Labels,
			URLTemplate:  r.URLTemplate,
			Logger:       a.logger.Named("review"),
		})
		if err != nil {
			return nil, err
		}
		c = gh
	default:
		c = review.NewMCP(sessions, review.MCPOptions{
			Provider:     r.Provider,
			Capability:   r.Capability,
			Project:      r.Project,
			Repository:   r.Repository,
			TargetBranch: r.TargetBranch,
			WorkItemID:   r.WorkItemID,
			URLTemplate:  r.URLTemplate,
			Logger:       a.logger.Named("review"),
		})
	}
	return review.WithTimeout(c, r.Timeout), nil
}

// notifier returns nil when neither a webhook nor a Lark app is configured.
func (a *app) notifier() *notify.Notifier {
	n := a.cfg.Notify
	var broadcast notify.Broadcaster
	if n.WebhookURL != "" {
		broadcast = notify.NewWebhook(n.WebhookURL, n.Timeout)
	}
	var direct notify.DirectSender
	if n.Lark.AppID != "" {
		direct = notify.NewLark(n.Lark.AppID, n.Lark.AppSecret, n.Lark.BaseURL, n.Timeout)
	}
	if broadcast == nil && direct == nil {
		return nil
	}
	return notify.New(broadcast, direct, a.logger.Named("notify"))
}

// runOptions tweak a pipeline run from the command line.
type runOptions struct {
	noBrowser bool
}

// orchestrator wires every stage to its real backend. The caller owns the
// returned session manager.
func (a *app) orchestrator(ctx context.Context, opts runOptions, m *metrics.Metrics) (*orchestrator.Orchestrator, *session.Manager, error) {
	completer, err := llm.New(a.cfg.LLM)
	if err != nil {
		return nil, nil, err
	}

	sessions := a.sessions()
	reviews, err := a.reviews(ctx, sessions)
	if err != nil {
		sessions.Close()
		return nil, nil, err
	}

	builder := a.builder()
	ws := a.workspace()
	ids := identity.NewResolver(a.cfg.Identity.PlatformMap, a.cfg.Identity.MessagingMap, a.cfg.Review.DefaultReviewer)
	if err := ids.Err(); err != nil {
		a.logger.Warn("identity tables unreadable, reviewers fall back to the default", zap.Error(err))
	}

	deps := stage.Deps{
		Selector:        a.selector(sessions),
		Filter:          a.filter(),
		Workspace:       ws,
		Builder:         builder,
		Completer:       completer,
		Fixer:           fix.NewExecutor(completer, builder, ws.Root(), a.cfg.Fix.ContextRadius, a.logger.Named("fix")),
		Identity:        ids,
		Reviews:         reviews,
		Effort:          a.effort,
		EffortFloor:     floor(a.cfg),
		UnassignedLabel: a.cfg.Notify.UnassignedLabel,
		Records:         a.records,
	}
	// Assigned only when set so the stages see untyped nils.
	if n := a.notifier(); n != nil {
		deps.Notifier = n
	}
	if a.cfg.Launch.Enabled && !opts.noBrowser {
		deps.Opener = launch.NewOpener()
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMetrics(m),
	}
	if ledger, err := a.openLedger(); err != nil {
		a.logger.Warn("event ledger unavailable, continuing without it", zap.Error(err))
	} else {
		orchOpts = append(orchOpts, orchestrator.WithEventLog(ledger))
	}

	return orchestrator.NewOrchestrator(a.store, stage.All(deps), orchOpts...), sessions, nil
}

func floor(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Effort.FloorMinutes) * time.Minute
}
