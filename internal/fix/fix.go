// Package fix applies a model-generated change to the target file of a
// finding. Git operations are left to the caller.
package fix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	appctx "github.com/lucasnoah/sonarfix/internal/context"
	"github.com/lucasnoah/sonarfix/internal/fault"
	"github.com/lucasnoah/sonarfix/internal/llm"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

// DefaultRadius is the number of lines shown on each side of the finding.
const DefaultRadius = 10

// Executor rewrites files using a Completer.
type Executor struct {
	completer llm.Completer
	builder   *appctx.Builder
	repoRoot  string
	radius    int
	logger    *zap.Logger
}

// NewExecutor creates an Executor rooted at repoRoot.
func NewExecutor(completer llm.Completer, builder *appctx.Builder, repoRoot string, radius int, logger *zap.Logger) *Executor {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		completer: completer,
		builder:   builder,
		repoRoot:  repoRoot,
		radius:    radius,
		logger:    logger,
	}
}

// Result describes what Apply did.
type Result struct {
	Path    string // absolute path of the target file
	RelPath string // path relative to the repository, "" when outside it
	Snippet bool
	Updated bool
	Summary string
	Reason  string // why the file was left unchanged
}

// Apply asks the model for the updated file content and writes it. A
// response that cannot be used leaves the file untouched and is not an
// error; model and file system failures are.
func (e *Executor) Apply(ctx context.Context, f *pipeline.Finding, sol *pipeline.FixSolution) (*Result, error) {
	if strings.TrimSpace(sol.FilePath) == "" {
		return &Result{Reason: "no target file"}, nil
	}
	res := e.resolve(sol.FilePath)

	original, err := os.ReadFile(res.Path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		e.logger.Warn("target file does not exist, model will create it", zap.String("path", res.Path))
	default:
		return nil, fault.Integration("read target file", err)
	}
	if !utf8.Valid(original) {
		res.Reason = "file is not UTF-8"
		e.logger.Warn("skipping non UTF-8 file", zap.String("path", res.Path))
		return res, nil
	}

	content := string(original)
	doc := newDocument(content)
	fc := appctx.FileContext{Path: res.Path, Content: content, TotalLines: len(doc.lines)}
	start, end, ok := doc.window(f.Line, e.radius)
	if ok {
		fc.Snippet = true
		fc.Text = strings.Join(doc.lines[start:end], doc.newline)
		fc.StartLine = start + 1
		fc.EndLine = end
		res.Snippet = true
	}

	system, user, err := e.builder.FixPrompt(f, sol, fc)
	if err != nil {
		return nil, fmt.Errorf("render fix prompt: %w", err)
	}
	reply, err := e.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	obj, ok := ParseObject(reply)
	if !ok {
		res.Reason = "model response is not JSON"
		e.logger.Warn("model response could not be parsed, file unchanged", zap.String("path", res.Path))
		return res, nil
	}

	updated, ok := e.updatedContent(obj, doc, start, end, fc.Snippet)
	if !ok {
		res.Reason = "model returned no usable content"
		e.logger.Warn("model returned no usable content, file unchanged", zap.String("path", res.Path))
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(res.Path), 0o755); err != nil {
		return nil, fault.Integration("create target directory", err)
	}
	if err := pipeline.WriteAtomic(res.Path, []byte(updated)); err != nil {
		return nil, fault.Integration("write target file", err)
	}
	res.Updated = true
	res.Summary = stringField(obj, "summary")
	e.logger.Info("fix written", zap.String("path", res.Path), zap.Bool("snippet", res.Snippet))
	return res, nil
}

func (e *Executor) updatedContent(obj map[string]any, doc document, start, end int, snippet bool) (string, bool) {
	if full := stringField(obj, "newContent"); strings.TrimSpace(full) != "" {
		return full, true
	}
	if !snippet {
		return "", false
	}
	part := stringField(obj, "updatedSnippet")
	if strings.TrimSpace(part) == "" {
		return "", false
	}
	return doc.splice(start, end, part), true
}

func (e *Executor) resolve(p string) *Result {
	res := &Result{}
	root, _ := filepath.Abs(e.repoRoot)
	if filepath.IsAbs(p) {
		res.Path = filepath.Clean(p)
	} else {
		res.Path = filepath.Join(root, filepath.FromSlash(p))
	}
	rel, err := filepath.Rel(root, res.Path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		e.logger.Warn("target file is outside the repository", zap.String("path", res.Path))
		return res
	}
	res.RelPath = filepath.ToSlash(rel)
	return res
}

// ParseObject parses a model reply as a JSON object. When the reply has
// surrounding prose, the text between the first '{' and the last '}' is
// tried instead.
func ParseObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, true
	}
	i, j := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if i < 0 || j <= i {
		return nil, false
	}
	obj = nil
	if err := json.Unmarshal([]byte(text[i:j+1]), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
