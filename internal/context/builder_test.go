package context

import (
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/sonarfix/internal/pipeline"
	"github.com/lucasnoah/sonarfix/internal/prompt"
)

func testFinding() *pipeline.Finding {
	return &pipeline.Finding{
		Key:        "AYx:abc/1",
		Rule:       "java:S1118",
		Severity:   "MAJOR",
		Type:       "CODE_SMELL",
		Component:  "proj:src/App.java",
		Line:       12,
		Message:    "Add a private constructor",
		Author:     "a@x.com",
		EffortText: "5min",
	}
}

func fixedBuilder() *Builder {
	clock := func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }
	return NewBuilder("", "88888").WithClock(clock)
}

func TestBranchName(t *testing.T) {
	name, err := fixedBuilder().BranchName(testFinding())
	if err != nil {
		t.Fatalf("BranchName: %v", err)
	}
	want := "fix-sonar-AYx-abc-1-20240305140709"
	if name != want {
		t.Errorf("expected %q, got %q", want, name)
	}
}

func TestBranchNameStripsUnsafeCharacters(t *testing.T) {
	f := testFinding()
	f.Key = "weird key~^"
	name, err := fixedBuilder().BranchName(f)
	if err != nil {
		t.Fatalf("BranchName: %v", err)
	}
	if strings.ContainsAny(name, " ~^") {
		t.Errorf("branch name not sanitized: %q", name)
	}
}

func TestFindingVarsOmitsZeroLine(t *testing.T) {
	f := testFinding()
	f.Line = 0
	if v := FindingVars(f)["line"]; v != "" {
		t.Errorf("expected empty line, got %q", v)
	}
	if v := FindingVars(testFinding())["file_path"]; v != "src/App.java" {
		t.Errorf("expected file path without project prefix, got %q", v)
	}
}

func TestSolutionPrompt(t *testing.T) {
	system, user, err := fixedBuilder().SolutionPrompt(testFinding())
	if err != nil {
		t.Fatalf("SolutionPrompt: %v", err)
	}
	if system == "" {
		t.Error("expected system prompt")
	}
	for _, want := range []string{"AYx:abc/1", "java:S1118", "proj:src/App.java", "Line: 12", "filePath"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestFixPromptSnippet(t *testing.T) {
	fix := &pipeline.FixSolution{Description: "add constructor", CodeDiff: "  private App() {}  "}
	_, user, err := fixedBuilder().FixPrompt(testFinding(), fix, FileContext{
		Path:       "/repo/src/App.java",
		Snippet:    true,
		Text:       "class App {\n}",
		StartLine:  2,
		EndLine:    22,
		TotalLines: 40,
	})
	if err != nil {
		t.Fatalf("FixPrompt: %v", err)
	}
	for _, want := range []string{"updatedSnippet", "lines 2 to 22 of 40", "```java", "private App() {}", "class App {"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestFixPromptWholeFile(t *testing.T) {
	fix := &pipeline.FixSolution{Description: "tidy"}
	_, user, err := fixedBuilder().FixPrompt(testFinding(), fix, FileContext{Path: "Makefile", Content: "all:\n"})
	if err != nil {
		t.Fatalf("FixPrompt: %v", err)
	}
	if !strings.Contains(user, "newContent") || !strings.Contains(user, "```text") {
		t.Errorf("unexpected prompt: %q", user)
	}
	if !strings.Contains(user, "derive the change from the description") {
		t.Error("expected placeholder for empty code diff")
	}
}

func TestCommitMessageUsesFirstLine(t *testing.T) {
	msg, err := fixedBuilder().CommitMessage(testFinding(), "make it private\n\nlong body")
	if err != nil {
		t.Fatalf("CommitMessage: %v", err)
	}
	if msg != "fix: resolve SonarQube issue AYx:abc/1 - make it private" {
		t.Errorf("unexpected commit message %q", msg)
	}
}

func TestReviewText(t *testing.T) {
	b := fixedBuilder()
	f := testFinding()
	fix := &pipeline.FixSolution{Description: "add constructor", FilePath: "src/App.java"}

	title, err := b.ReviewTitle(f)
	if err != nil {
		t.Fatalf("ReviewTitle: %v", err)
	}
	if title != "fix: resolve SonarQube issue AYx:abc/1" {
		t.Errorf("unexpected title %q", title)
	}

	desc, err := b.ReviewDescription(f, fix)
	if err != nil {
		t.Fatalf("ReviewDescription: %v", err)
	}
	if !strings.Contains(desc, "Work item: 88888") || !strings.Contains(desc, "src/App.java") {
		t.Errorf("unexpected description %q", desc)
	}

	dm, err := b.DirectMessage("https://x/pr/7", f, fix)
	if err != nil {
		t.Fatalf("DirectMessage: %v", err)
	}
	if !strings.Contains(dm, "https://x/pr/7") || !strings.Contains(dm, "Fix: add constructor") {
		t.Errorf("unexpected message %q", dm)
	}
}

func TestWithTemplateOverride(t *testing.T) {
	b := fixedBuilder().WithTemplate(prompt.ReviewTitle, "[sonar] {{smell_key}} ({{severity}})").WithTemplate(prompt.Commit, "  ")
	title, err := b.ReviewTitle(testFinding())
	if err != nil {
		t.Fatalf("ReviewTitle: %v", err)
	}
	if title != "[sonar] AYx:abc/1 (MAJOR)" {
		t.Errorf("unexpected title %q", title)
	}
	msg, err := b.CommitMessage(testFinding(), "x")
	if err != nil {
		t.Fatalf("CommitMessage: %v", err)
	}
	if !strings.HasPrefix(msg, "fix: resolve SonarQube issue") {
		t.Errorf("blank override should keep built-in, got %q", msg)
	}
}
