// Package review opens review requests (pull requests) for fix branches.
package review

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lucasnoah/sonarfix/internal/prompt"
)

// Request describes the review request to open.
type Request struct {
	Branch      string // fix branch, short name
	Title       string
	Description string
	Reviewer    string // platform reviewer id; "" for none
}

// Result is the created review request. URL is the human-facing link.
type Result struct {
	ID     string
	URL    string
	Title  string
	Status string
}

// Creator opens review requests.
type Creator interface {
	Create(ctx context.Context, req Request) (*Result, error)
}

// LastSegment returns the final path segment of a resource URL.
func LastSegment(resource string) string {
	resource = strings.TrimSpace(resource)
	if u, err := url.Parse(resource); err == nil && u.Path != "" {
		resource = u.Path
	}
	resource = strings.TrimRight(resource, "/")
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}

// Link substitutes id into the link template.
func Link(tmpl, id string) (string, error) {
	if !strings.Contains(tmpl, "{{id}}") {
		return "", fmt.Errorf("review link template %q has no {{id}} placeholder", tmpl)
	}
	return prompt.Render(tmpl, prompt.Vars{"id": id})
}

// SourceRef returns the full ref name for a branch.
func SourceRef(branch string) string {
	if strings.HasPrefix(branch, "refs/") {
		return branch
	}
	return "refs/heads/" + branch
}

// WithTimeout bounds every Create call on c to d. A d <= 0 returns c.
func WithTimeout(c Creator, d time.Duration) Creator {
	if d <= 0 {
		return c
	}
	return &bounded{Creator: c, timeout: d}
}

type bounded struct {
	Creator
	timeout time.Duration
}

func (b *bounded) Create(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.Creator.Create(ctx, req)
}
