// Package selector finds the next actionable finding on the issue tracker.
package selector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lucasnoah/sonarfix/internal/effort"
	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// SearchCapabilities are the tracker capability names tried in order.
var SearchCapabilities = []string{"issues", "issues/search", "issues.search", "issues_search"}

// Invoker is the slice of the session manager the selector needs.
type Invoker interface {
	Invoke(ctx context.Context, provider, capability string, params map[string]any) (map[string]any, error)
	ResolveCapability(ctx context.Context, provider string, preferred, keywords []string) (string, error)
}

// ProcessedSet reports the keys already handled.
type ProcessedSet interface {
	Keys() (map[string]bool, error)
}

// Filter holds the tracker query.
type Filter struct {
	ProjectKey string
	Branch     string
	Severities []string
	Types      []string
	Statuses   []string
	Sort       string
	Ascending  bool
	PageSize   int
	MaxPages   int // 0 = until the tracker runs out
}

// Params renders the tracker query for one page.
func (f Filter) Params(page int) map[string]any {
	p := map[string]any{
		"project_key": f.ProjectKey,
		"s":           f.Sort,
		"asc":         f.Ascending,
		"page":        strconv.Itoa(page),
		"page_size":   strconv.Itoa(f.PageSize),
	}
	if f.Branch != "" {
		p["branch"] = f.Branch
	}
	if len(f.Severities) > 0 {
		p["severities"] = f.Severities
	}
	if len(f.Types) > 0 {
		p["types"] = f.Types
	}
	if len(f.Statuses) > 0 {
		p["status"] = strings.Join(f.Statuses, ",")
	}
	return p
}

// Selector pages through tracker results looking for an unprocessed finding.
type Selector struct {
	invoker    Invoker
	provider   string
	capability string
	processed  ProcessedSet
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option customises a Selector.
type Option func(*Selector)

// WithCapability pins the tracker capability name instead of resolving it.
func WithCapability(name string) Option {
	return func(s *Selector) { s.capability = name }
}

// WithPageRate throttles page fetches. A rate <= 0 disables throttling.
func WithPageRate(perSecond float64) Option {
	return func(s *Selector) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

// New creates a Selector querying provider through invoker.
func New(invoker Invoker, provider string, processed ProcessedSet, opts ...Option) *Selector {
	s := &Selector{
		invoker:   invoker,
		provider:  provider,
		processed: processed,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the first finding that is OPEN, has a non-blank author and
// has not been processed. It returns nil, nil when no such finding exists.
// Pages are fetched in order and fetching stops at the first match.
func (s *Selector) Select(ctx context.Context, f Filter) (*pipeline.Finding, error) {
	if f.PageSize <= 0 {
		f.PageSize = 50
	}
	if f.Sort == "" {
		f.Sort = "CREATION_DATE"
	}
	if len(f.Statuses) == 0 {
		f.Statuses = []string{"OPEN"}
	}

	processed, err := s.processed.Keys()
	if err != nil {
		return nil, fault.Integration("load processed issues", err)
	}

	capability := s.capability
	if capability == "" {
		capability, err = s.invoker.ResolveCapability(ctx, s.provider, SearchCapabilities, []string{"issues"})
		if err != nil {
			return nil, err
		}
	}

	for page := 1; f.MaxPages <= 0 || page <= f.MaxPages; page++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := s.invoker.Invoke(ctx, s.provider, capability, f.Params(page))
		if err != nil {
			return nil, fault.Transport("search issues", err)
		}
		issues := issueList(resp)
		s.logger.Debug("tracker page fetched", zap.Int("page", page), zap.Int("issues", len(issues)))
		if len(issues) == 0 {
			return nil, nil
		}

		for _, raw := range issues {
			finding := parseIssue(raw)
			if eligible(finding, processed) {
				s.logger.Info("finding selected", zap.String("finding", finding.Key), zap.Int("page", page))
				return finding, nil
			}
		}

		if lastPage(resp, page, f.PageSize, len(issues)) {
			return nil, nil
		}
	}
	return nil, nil
}

func eligible(f *pipeline.Finding, processed map[string]bool) bool {
	return f.Key != "" &&
		!processed[f.Key] &&
		f.Status == "OPEN" &&
		strings.TrimSpace(f.Author) != ""
}

// lastPage reports whether page was the final one, using tracker paging
// metadata when present and a short page otherwise.
func lastPage(resp map[string]any, page, pageSize, got int) bool {
	if got < pageSize {
		return true
	}
	paging, _ := resp["paging"].(map[string]any)
	if paging == nil {
		return false
	}
	total, ok := intField(paging, "total")
	if !ok {
		return false
	}
	size := pageSize
	if v, ok := intField(paging, "pageSize", "page_size"); ok && v > 0 {
		size = v
	}
	index := page
	if v, ok := intField(paging, "pageIndex", "page_index"); ok {
		index = v
	}
	maxPage := (total + size - 1) / size
	return index >= maxPage
}

func issueList(resp map[string]any) []map[string]any {
	raw, _ := resp["issues"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func parseIssue(raw map[string]any) *pipeline.Finding {
	effortText := stringField(raw, "effort")
	if effortText == "" {
		effortText = stringField(raw, "debt")
	}
	line, _ := intField(raw, "line")
	return &pipeline.Finding{
		Key:          stringField(raw, "key"),
		Rule:         stringField(raw, "rule"),
		Severity:     stringField(raw, "severity"),
		Type:         stringField(raw, "type"),
		Component:    stringField(raw, "component"),
		Line:         line,
		Message:      stringField(raw, "message"),
		Author:       stringField(raw, "author"),
		CreationDate: stringField(raw, "creationDate"),
		Status:       stringField(raw, "status"),
		EffortText:   effortText,
		Effort:       effort.Parse(effortText),
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(m map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
