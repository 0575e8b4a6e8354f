package review

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/fault"
)

// CreateCapabilities are the capability names tried, in order, when no
// capability is configured.
var CreateCapabilities = []string{
	"pullRequests/create",
	"pullrequests/create",
	"createPullRequest",
	"pull_request_create",
	"create_pull_request",
}

var createKeywords = []string{"pull", "create"}

// Invoker calls capabilities on a provider session.
type Invoker interface {
	Invoke(ctx context.Context, provider, capability string, params map[string]any) (map[string]any, error)
	ResolveCapability(ctx context.Context, provider string, preferred, keywords []string) (string, error)
}

// MCPOptions configures an MCP review backend.
type MCPOptions struct {
	Provider     string
	Capability   string
	Project      string
	Repository   string
	TargetBranch string
	WorkItemID   string
	URLTemplate  string
	Logger       *zap.Logger
}

// MCP creates review requests through a code-hosting provider session.
type MCP struct {
	invoker Invoker
	opts    MCPOptions
	logger  *zap.Logger
}

// NewMCP creates an MCP review backend.
func NewMCP(invoker Invoker, opts MCPOptions) *MCP {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCP{invoker: invoker, opts: opts, logger: logger}
}

// Create implements Creator.
func (m *MCP) Create(ctx context.Context, req Request) (*Result, error) {
	capability := m.opts.Capability
	if capability == "" {
		name, err := m.invoker.ResolveCapability(ctx, m.opts.Provider, CreateCapabilities, createKeywords)
		if err != nil {
			return nil, err
		}
		capability = name
	}

	params := m.params(req)
	m.logger.Info("creating review request",
		zap.String("provider", m.opts.Provider),
		zap.String("capability", capability),
		zap.String("branch", req.Branch),
	)
	resp, err := m.invoker.Invoke(ctx, m.opts.Provider, capability, params)
	if err != nil {
		return nil, err
	}

	id := ""
	if raw, ok := resp["url"].(string); ok && raw != "" {
		id = LastSegment(raw)
	}
	if id == "" {
		id = scalar(resp["pullRequestId"])
	}
	if id == "" {
		return nil, fault.Integration("create review", fmt.Errorf("response has no url or pullRequestId"))
	}

	link, err := Link(m.opts.URLTemplate, id)
	if err != nil {
		return nil, fault.Integration("create review", err)
	}
	res := &Result{ID: id, URL: link, Title: req.Title}
	if t, ok := resp["title"].(string); ok && t != "" {
		res.Title = t
	}
	res.Status = scalar(resp["status"])
	return res, nil
}

func (m *MCP) params(req Request) map[string]any {
	params := map[string]any{}
	set := func(k, v string) {
		if v != "" {
			params[k] = v
		}
	}
	set("projectId", m.opts.Project)
	set("repositoryId", m.opts.Repository)
	set("title", req.Title)
	set("description", strings.TrimSpace(req.Description))
	if req.Branch != "" {
		params["sourceRefName"] = SourceRef(req.Branch)
	}
	if m.opts.TargetBranch != "" {
		params["targetRefName"] = SourceRef(m.opts.TargetBranch)
	}
	if req.Reviewer != "" {
		params["reviewers"] = []string{req.Reviewer}
	}
	if m.opts.WorkItemID != "" {
		if n, err := strconv.Atoi(m.opts.WorkItemID); err == nil {
			params["workItemRefs"] = []int{n}
		} else {
			m.logger.Warn("work item id is not numeric, skipping link", zap.String("work_item_id", m.opts.WorkItemID))
		}
	}
	return params
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
