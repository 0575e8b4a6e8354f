package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "sonarfix.yaml"

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses a configuration from the given YAML file path.
// A .env file next to the config (and in the working directory) is loaded
// first; ${VAR} references in the YAML are then expanded from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")

	return Parse(data)
}

// Parse builds a Config from YAML bytes, expanding ${VAR} references and
// applying defaults.
func Parse(data []byte) (*Config, error) {
	expanded := envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})

	cfg := Default()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./sonarfix.yaml, ~/.sonarfix/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{FileName}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".sonarfix", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no sonarfix config found (searched: %v)", candidates)
}

func loadDotEnv(paths ...string) {
	var existing []string
	seen := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(abs); err == nil {
			existing = append(existing, abs)
		}
	}
	if len(existing) > 0 {
		// Values already in the environment win.
		_ = godotenv.Load(existing...)
	}
}

// Default returns a Config populated with every default value. Options whose
// zero value is meaningful (booleans that default to true, temperature) are
// set here so YAML can override them with the zero value.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Pull: true,
			Push: true,
		},
		LLM:    LLMConfig{Temperature: 0.3},
		Launch: LaunchConfig{Enabled: true},
	}
}

// applyDefaults fills zero values left after parsing.
func applyDefaults(cfg *Config) {
	if cfg.StateDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.StateDir = filepath.Join(home, ".sonarfix")
		} else {
			cfg.StateDir = ".sonarfix"
		}
	}
	state := func(name string) string { return filepath.Join(cfg.StateDir, name) }

	if cfg.Timeouts.Connect == 0 {
		cfg.Timeouts.Connect = 30 * time.Second
	}
	if cfg.Timeouts.Invoke == 0 {
		cfg.Timeouts.Invoke = 120 * time.Second
	}

	s := &cfg.Selector
	if s.Provider == "" {
		s.Provider = "sonarqube"
	}
	if len(s.Statuses) == 0 {
		s.Statuses = []string{"OPEN"}
	}
	if s.Sort == "" {
		s.Sort = "CREATION_DATE"
	}
	if s.PageSize <= 0 {
		s.PageSize = 50
	}

	w := &cfg.Workspace
	if w.RepoPath == "" {
		w.RepoPath = "."
	}
	if w.BaseBranch == "" {
		w.BaseBranch = "master"
	}
	if w.Remote == "" {
		w.Remote = "origin"
	}
	if w.AuthorName == "" {
		w.AuthorName = "sonarfix"
	}
	if w.AuthorEmail == "" {
		w.AuthorEmail = "sonarfix@localhost"
	}

	if cfg.Fix.ContextRadius <= 0 {
		cfg.Fix.ContextRadius = 10
	}

	l := &cfg.LLM
	if l.Provider == "" {
		l.Provider = "openai"
	}
	if l.Provider == "openai" && l.BaseURL == "" {
		l.BaseURL = "http://127.0.0.1:6091/v1"
	}
	if l.Model == "" {
		if l.Provider == "anthropic" {
			l.Model = "claude-sonnet-4-5"
		} else {
			l.Model = "Kimi-K2"
		}
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 4096
	}
	if l.Timeout == 0 {
		l.Timeout = 180 * time.Second
	}

	r := &cfg.Review
	if r.Backend == "" {
		r.Backend = "mcp"
	}
	if r.Provider == "" {
		r.Provider = "azureDevOps"
	}
	if r.TargetBranch == "" {
		r.TargetBranch = "refs/heads/" + w.BaseBranch
	}
	if r.Timeout == 0 {
		r.Timeout = 180 * time.Second
	}

	if cfg.Identity.PlatformMap == "" {
		cfg.Identity.PlatformMap = state("email_to_platform_id.json")
	}
	if cfg.Identity.MessagingMap == "" {
		cfg.Identity.MessagingMap = state("email_to_messaging_id.json")
	}
	if cfg.Effort.Path == "" {
		cfg.Effort.Path = state("effort.json")
	}
	if cfg.Effort.FloorMinutes <= 0 {
		cfg.Effort.FloorMinutes = 5
	}
	if cfg.Records.Path == "" {
		cfg.Records.Path = state("processed_issues.json")
	}
	if cfg.Checkpoints == "" {
		cfg.Checkpoints = state("runs")
	}

	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = 10 * time.Second
	}
	if cfg.Notify.UnassignedLabel == "" {
		cfg.Notify.UnassignedLabel = "unassigned"
	}

	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "sqlite"
	}
	if cfg.Ledger.DSN == "" && cfg.Ledger.Driver == "sqlite" {
		cfg.Ledger.DSN = state("sonarfix.db")
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "sonarfix"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8089"
	}
}
