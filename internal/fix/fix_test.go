package fix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/lucasnoah/sonarfix/internal/context"
	"github.com/lucasnoah/sonarfix/internal/pipeline"
)

type fakeCompleter struct {
	reply  string
	err    error
	prompt string
	calls  int
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

func numbered(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return sb.String()
}

func setup(t *testing.T, content string, reply string) (string, *fakeCompleter, *Executor) {
	t.Helper()
	root := t.TempDir()
	if content != "" {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "src", "App.java"), []byte(content), 0o644))
	}
	fc := &fakeCompleter{reply: reply}
	return root, fc, NewExecutor(fc, appctx.NewBuilder("", ""), root, 0, nil)
}

func finding(line int) *pipeline.Finding {
	return &pipeline.Finding{Key: "K1", Component: "proj:src/App.java", Line: line, Message: "m"}
}

func solution() *pipeline.FixSolution {
	return &pipeline.FixSolution{FilePath: "src/App.java", CodeDiff: "x", Description: "d"}
}

func readFile(t *testing.T, root string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, "src", "App.java"))
	require.NoError(t, err)
	return string(b)
}

func TestApply_SnippetSplice(t *testing.T) {
	root, fc, ex := setup(t, numbered(40), `{"updatedSnippet": "patched a\npatched b", "summary": "patched"}`)

	res, err := ex.Apply(context.Background(), finding(20), solution())
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.True(t, res.Snippet)
	assert.Equal(t, "patched", res.Summary)
	assert.Equal(t, "src/App.java", res.RelPath)
	assert.Contains(t, fc.prompt, "lines 10 to 30 of 40")

	got := readFile(t, root)
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	// 9 kept before, 2 replacement, 10 kept after.
	require.Len(t, lines, 21)
	assert.Equal(t, "line 9", lines[8])
	assert.Equal(t, "patched a", lines[9])
	assert.Equal(t, "patched b", lines[10])
	assert.Equal(t, "line 31", lines[11])
	assert.True(t, strings.HasSuffix(got, "\n"), "trailing newline kept")
}

func TestApply_NewContentWinsInSnippetMode(t *testing.T) {
	root, _, ex := setup(t, numbered(5), `{"updatedSnippet": "ignored", "newContent": "whole file\n"}`)

	res, err := ex.Apply(context.Background(), finding(2), solution())
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, "whole file\n", readFile(t, root))
}

func TestApply_WholeFileWithoutLine(t *testing.T) {
	root, fc, ex := setup(t, "class App {}\n", `{"newContent": "final class App {}\n", "summary": "s"}`)

	res, err := ex.Apply(context.Background(), finding(0), solution())
	require.NoError(t, err)
	assert.False(t, res.Snippet)
	assert.True(t, res.Updated)
	assert.Contains(t, fc.prompt, "newContent")
	assert.Equal(t, "final class App {}\n", readFile(t, root))
}

func TestApply_LineBeyondEndUsesWholeFile(t *testing.T) {
	_, _, ex := setup(t, numbered(3), `{"newContent": "x\n"}`)
	res, err := ex.Apply(context.Background(), finding(99), solution())
	require.NoError(t, err)
	assert.False(t, res.Snippet)
}

func TestApply_ProseWrappedJSON(t *testing.T) {
	root, _, ex := setup(t, "a\n", "Sure! Here you go:\n```json\n{\"newContent\": \"b\\n\"}\n```")
	res, err := ex.Apply(context.Background(), finding(0), solution())
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, "b\n", readFile(t, root))
}

func TestApply_UnusableResponsesLeaveFileUnchanged(t *testing.T) {
	for name, reply := range map[string]string{
		"not json":          "I cannot help with that",
		"empty":             "",
		"blank snippet":     `{"updatedSnippet": "   "}`,
		"snippet type":      `{"updatedSnippet": 42}`,
		"whole file absent": `{"summary": "nothing"}`,
	} {
		t.Run(name, func(t *testing.T) {
			root, _, ex := setup(t, numbered(5), reply)
			res, err := ex.Apply(context.Background(), finding(3), solution())
			require.NoError(t, err)
			assert.False(t, res.Updated)
			assert.NotEmpty(t, res.Reason)
			assert.Equal(t, numbered(5), readFile(t, root))
		})
	}
}

func TestApply_NonUTF8Skipped(t *testing.T) {
	root, fc, ex := setup(t, "caf\xe9\n", `{"newContent": "x"}`)
	res, err := ex.Apply(context.Background(), finding(1), solution())
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 0, fc.calls)
	assert.Equal(t, "caf\xe9\n", readFile(t, root))
}

func TestApply_MissingFileIsCreated(t *testing.T) {
	root, _, ex := setup(t, "", `{"newContent": "class App {}\n"}`)
	res, err := ex.Apply(context.Background(), finding(4), solution())
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, "class App {}\n", readFile(t, root))
}

func TestApply_NoFilePath(t *testing.T) {
	_, fc, ex := setup(t, "", "")
	res, err := ex.Apply(context.Background(), finding(1), &pipeline.FixSolution{})
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, 0, fc.calls)
}

func TestApply_CompleterError(t *testing.T) {
	_, fc, ex := setup(t, "a\n", "")
	fc.err = errors.New("gateway down")
	_, err := ex.Apply(context.Background(), finding(1), solution())
	require.Error(t, err)
}

func TestDocument_CRLF(t *testing.T) {
	d := newDocument("a\r\nb\r\nc\r\n")
	require.Equal(t, []string{"a", "b", "c"}, d.lines)
	assert.Equal(t, "a\r\nB\r\nc\r\n", d.splice(1, 2, "B"))
}

func TestDocument_Window(t *testing.T) {
	d := newDocument(numbered(40))
	start, end, ok := d.window(1, 10)
	assert.True(t, ok)
	assert.Equal(t, 0, start)
	assert.Equal(t, 11, end)

	start, end, ok = d.window(40, 10)
	assert.True(t, ok)
	assert.Equal(t, 29, start)
	assert.Equal(t, 40, end)
}

func TestParseObject(t *testing.T) {
	obj, ok := ParseObject(`  {"a": "b"}  `)
	require.True(t, ok)
	assert.Equal(t, "b", obj["a"])

	_, ok = ParseObject(`[1, 2]`)
	assert.False(t, ok)

	_, ok = ParseObject(`prefix { broken } suffix`)
	assert.False(t, ok)
}
