// Package context assembles the template variables for each piece of text the
// pipeline generates: branch names, prompts, commit messages and review text.
package context

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/prompt"
)

// Builder renders pipeline text from templates.
type Builder struct {
	templateDir string
	workItemID  string
	overrides   map[string]string
	now         func() time.Time
}

// NewBuilder creates a Builder. templateDir holds optional <name>.md overrides.
func NewBuilder(templateDir, workItemID string) *Builder {
	return &Builder{
		templateDir: templateDir,
		workItemID:  workItemID,
		overrides:   make(map[string]string),
		now:         time.Now,
	}
}

// WithTemplate sets an inline template for name, taking precedence over
// both the template directory and the built-in text. Empty tmpl is ignored.
func (b *Builder) WithTemplate(name, tmpl string) *Builder {
	if strings.TrimSpace(tmpl) != "" {
		b.overrides[name] = tmpl
	}
	return b
}

func (b *Builder) render(name string, vars prompt.Vars) (string, error) {
	if tmpl, ok := b.overrides[name]; ok {
		return prompt.Render(tmpl, vars)
	}
	return prompt.RenderNamed(name, b.templateDir, vars)
}

// WithClock replaces the clock used for branch timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// FindingVars returns the variables describing a finding.
func FindingVars(f *pipeline.Finding) prompt.Vars {
	line := ""
	if f.Line > 0 {
		line = strconv.Itoa(f.Line)
	}
	return prompt.Vars{
		"smell_key": f.Key,
		"rule":      f.Rule,
		"severity":  f.Severity,
		"type":      f.Type,
		"component": f.Component,
		"file_path": f.FilePath(),
		"line":      line,
		"message":   f.Message,
		"author":    f.Author,
		"effort":    f.EffortText,
	}
}

var branchUnsafe = regexp.MustCompile(`[^a-zA-Z0-9/_.-]+`)

// BranchName renders the fix branch for f. Separators in the finding key
// are flattened so the key cannot create nested refs.
func (b *Builder) BranchName(f *pipeline.Finding) (string, error) {
	vars := FindingVars(f)
	vars["smell_key"] = strings.NewReplacer(":", "-", "/", "-").Replace(f.Key)
	vars["timestamp"] = b.now().Format("20060102150405")
	name, err := b.render(prompt.Branch, vars)
	if err != nil {
		return "", err
	}
	name = branchUnsafe.ReplaceAllString(strings.TrimSpace(name), "-")
	name = strings.Trim(name, "-./")
	if name == "" {
		return "", fmt.Errorf("branch template produced an empty name for %s", f.Key)
	}
	return name, nil
}

// SolutionPrompt returns the system and user prompts for fix planning.
func (b *Builder) SolutionPrompt(f *pipeline.Finding) (system, user string, err error) {
	if system, err = b.render(prompt.SolutionSystem, nil); err != nil {
		return "", "", err
	}
	if user, err = b.render(prompt.Solution, FindingVars(f)); err != nil {
		return "", "", err
	}
	return system, user, nil
}

// FileContext is the slice of the target file shown to the model.
type FileContext struct {
	Path       string
	Content    string // full file, used when Snippet is false
	Snippet    bool
	Text       string // snippet text
	StartLine  int    // 1-based, inclusive
	EndLine    int    // 1-based, inclusive
	TotalLines int
}

// FixPrompt returns the system and user prompts for applying a fix.
func (b *Builder) FixPrompt(f *pipeline.Finding, fix *pipeline.FixSolution, fc FileContext) (system, user string, err error) {
	vars := FindingVars(f)
	vars["file_path"] = fc.Path
	vars["description"] = fix.Description
	vars["code_diff"] = strings.TrimSpace(fix.CodeDiff)
	if vars["code_diff"] == "" {
		vars["code_diff"] = "No code provided; derive the change from the description."
	}
	vars["language"] = strings.TrimPrefix(filepath.Ext(fc.Path), ".")
	if vars["language"] == "" {
		vars["language"] = "text"
	}

	name := prompt.FixFile
	if fc.Snippet {
		name = prompt.FixSnippet
		vars["snippet"] = fc.Text
		vars["start_line"] = strconv.Itoa(fc.StartLine)
		vars["end_line"] = strconv.Itoa(fc.EndLine)
		vars["total_lines"] = strconv.Itoa(fc.TotalLines)
	} else {
		vars["content"] = fc.Content
	}

	if system, err = b.render(prompt.FixSystem, nil); err != nil {
		return "", "", err
	}
	if user, err = b.render(name, vars); err != nil {
		return "", "", err
	}
	return system, user, nil
}

// CommitMessage renders the commit message for a fix.
func (b *Builder) CommitMessage(f *pipeline.Finding, summary string) (string, error) {
	vars := FindingVars(f)
	vars["summary"] = oneLine(summary)
	return b.render(prompt.Commit, vars)
}

// ReviewTitle renders the review request title.
func (b *Builder) ReviewTitle(f *pipeline.Finding) (string, error) {
	return b.render(prompt.ReviewTitle, FindingVars(f))
}

// ReviewDescription renders the review request body.
func (b *Builder) ReviewDescription(f *pipeline.Finding, fix *pipeline.FixSolution) (string, error) {
	vars := FindingVars(f)
	vars["description"] = fix.Description
	if fix.FilePath != "" {
		vars["file_path"] = fix.FilePath
	}
	vars["work_item_id"] = b.workItemID
	out, err := b.render(prompt.ReviewDescription, vars)
	return strings.TrimSpace(out), err
}

// DirectMessage renders the text sent to the responsible person.
func (b *Builder) DirectMessage(link string, f *pipeline.Finding, fix *pipeline.FixSolution) (string, error) {
	vars := prompt.Vars{"link": link, "smell_key": "", "description": ""}
	if f != nil {
		vars["smell_key"] = f.Key
	}
	if fix != nil {
		vars["description"] = fix.Description
	}
	out, err := b.render(prompt.DirectMessage, vars)
	return strings.TrimSpace(out), err
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
