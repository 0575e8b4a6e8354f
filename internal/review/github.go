package review

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/lucasnoah/sonarfix/internal/fault"
)

// GitHubOptions configures the GitHub review backend.
type GitHubOptions struct {
	Owner        string
	Repo         string
	Token        string
	BaseURL      string // GitHub Enterprise API root; empty for github.com
	TargetBranch string
	Labels       []string
	URLTemplate  string // optional; the pull request's html_url is used when empty
	Logger       *zap.Logger
}

// GitHub creates pull requests through the GitHub REST API.
type GitHub struct {
	client *github.Client
	opts   GitHubOptions
	logger *zap.Logger
}

// NewGitHub creates a GitHub backend authenticated with a static token.
func NewGitHub(ctx context.Context, opts GitHubOptions) (*GitHub, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("GitHub token not set")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if opts.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}
	return newGitHubWithClient(client, opts), nil
}

func newGitHubWithClient(client *github.Client, opts GitHubOptions) *GitHub {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHub{client: client, opts: opts, logger: logger}
}

// Create implements Creator.
func (g *GitHub) Create(ctx context.Context, req Request) (*Result, error) {
	base := strings.TrimPrefix(g.opts.TargetBranch, "refs/heads/")
	if base == "" {
		base = "master"
	}
	pr, _, err := g.client.PullRequests.Create(ctx, g.opts.Owner, g.opts.Repo, &github.NewPullRequest{
		Title: github.String(req.Title),
		Head:  github.String(strings.TrimPrefix(req.Branch, "refs/heads/")),
		Base:  github.String(base),
		Body:  github.String(strings.TrimSpace(req.Description)),
	})
	if err != nil {
		return nil, fault.Integration("create pull request", err)
	}

	number := pr.GetNumber()
	if req.Reviewer != "" {
		_, _, err := g.client.PullRequests.RequestReviewers(ctx, g.opts.Owner, g.opts.Repo, number,
			github.ReviewersRequest{Reviewers: []string{req.Reviewer}})
		if err != nil {
			g.logger.Warn("requesting reviewer failed", zap.Int("pr", number), zap.String("reviewer", req.Reviewer), zap.Error(err))
		}
	}
	if len(g.opts.Labels) > 0 {
		if _, _, err := g.client.Issues.AddLabelsToIssue(ctx, g.opts.Owner, g.opts.Repo, number, g.opts.Labels); err != nil {
			g.logger.Warn("adding labels failed", zap.Int("pr", number), zap.Error(err))
		}
	}

	id := strconv.Itoa(number)
	link := pr.GetHTMLURL()
	if g.opts.URLTemplate != "" {
		if link, err = Link(g.opts.URLTemplate, id); err != nil {
			return nil, fault.Integration("create pull request", err)
		}
	}
	return &Result{ID: id, URL: link, Title: pr.GetTitle(), Status: pr.GetState()}, nil
}
