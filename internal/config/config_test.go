package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
state_dir: /tmp/sonarfix-state
providers:
  sonarqube:
    type: stdio
    command: npx
    args: ["-y", "sonarqube-mcp-server"]
    env:
      SONAR_TOKEN: ${SONARFIX_TEST_TOKEN}
  azureDevOps:
    type: streamableHttp
    url: http://localhost:7070/mcp
    timeout: 45s
  unused:
    type: bogus
    disabled: true
selector:
  project_key: demo
  severities: [CRITICAL, MAJOR]
review:
  project: Platform
  repository: api
  default_reviewer: 00000000-0000-0000-0000-000000000001
  url_template: https://dev.example.com/Platform/_git/api/pullrequest/{{id}}
workspace:
  pull: false
launch:
  enabled: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("SONARFIX_TEST_TOKEN", "squ_secret")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.Providers["sonarqube"].Env["SONAR_TOKEN"]; got != "squ_secret" {
		t.Errorf("SONAR_TOKEN = %q, want expanded value", got)
	}
	if cfg.Selector.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.Selector.PageSize)
	}
	if len(cfg.Selector.Statuses) != 1 || cfg.Selector.Statuses[0] != "OPEN" {
		t.Errorf("Statuses = %v, want [OPEN]", cfg.Selector.Statuses)
	}
	if cfg.Workspace.Pull {
		t.Error("Pull should be false when set in YAML")
	}
	if !cfg.Workspace.Push {
		t.Error("Push should default to true")
	}
	if cfg.Launch.Enabled {
		t.Error("Launch.Enabled should be false when set in YAML")
	}
	if cfg.Review.TargetBranch != "refs/heads/master" {
		t.Errorf("TargetBranch = %q", cfg.Review.TargetBranch)
	}
	if cfg.Records.Path != filepath.Join("/tmp/sonarfix-state", "processed_issues.json") {
		t.Errorf("Records.Path = %q", cfg.Records.Path)
	}
	if got := cfg.Providers["azureDevOps"].Timeout; got != 45*time.Second {
		t.Errorf("azureDevOps timeout = %v, want 45s", got)
	}
	if cfg.Providers["sonarqube"].Timeout != 0 || cfg.Timeouts.Invoke != 120*time.Second {
		t.Errorf("sonarqube timeout = %v, invoke default = %v", cfg.Providers["sonarqube"].Timeout, cfg.Timeouts.Invoke)
	}

	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("expected no validation errors, got %v", errs)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("selector:\n  project_key: ${SONARFIX_DOTENV_KEY}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SONARFIX_DOTENV_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SONARFIX_DOTENV_KEY") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Selector.ProjectKey != "from-dotenv" {
		t.Errorf("ProjectKey = %q, want from-dotenv", cfg.Selector.ProjectKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "reading config file") {
		t.Fatalf("expected reading error, got %v", err)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("providers: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "parsing config YAML") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestDefaultsForAnthropic(t *testing.T) {
	cfg, err := Parse([]byte("llm:\n  provider: anthropic\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.LLM.BaseURL != "" {
		t.Errorf("BaseURL = %q, want empty for anthropic", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", cfg.LLM.Temperature)
	}
}

func TestExplicitZeroTemperatureIsKept(t *testing.T) {
	cfg, err := Parse([]byte("llm:\n  temperature: 0\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", cfg.LLM.Temperature)
	}
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg, err := Parse([]byte(`
providers:
  sonarqube:
    type: stdio
  azureDevOps:
    type: streamableHttp
llm:
  provider: mystery
review:
  url_template: https://example.com/pr
ledger:
  driver: mongo
notify:
  lark:
    app_id: cli_x
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	errs := Validate(cfg)
	for _, field := range []string{
		"providers.sonarqube.command",
		"providers.azureDevOps.url",
		"selector.project_key",
		"llm.provider",
		"review.project",
		"review.repository",
		"review.default_reviewer",
		"review.url_template",
		"notify.lark",
		"ledger.driver",
	} {
		if !hasField(errs, field) {
			t.Errorf("expected validation error for %s, got %v", field, errs)
		}
	}
}

func TestValidateGitHubBackend(t *testing.T) {
	cfg, _ := Parse([]byte(`
providers:
  sonarqube: {type: stdio, command: sonar-mcp}
selector: {project_key: demo}
review:
  backend: github
  default_reviewer: octocat
  github: {owner: acme}
`))
	errs := Validate(cfg)
	if !hasField(errs, "review.github") || !hasField(errs, "review.github.token") {
		t.Errorf("expected github errors, got %v", errs)
	}
	if hasField(errs, "review.provider") {
		t.Error("github backend should not require an MCP review provider")
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Field: "selector.project_key", Message: "is required"}
	if e.Error() != "selector.project_key: is required" {
		t.Errorf("Error() = %q", e.Error())
	}
}
