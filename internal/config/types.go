package config

import "time"

// Config is the top-level configuration parsed from sonarfix YAML.
type Config struct {
	StateDir    string                    `yaml:"state_dir"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Timeouts    Timeouts                  `yaml:"timeouts"`
	Selector    SelectorConfig            `yaml:"selector"`
	Workspace   WorkspaceConfig           `yaml:"workspace"`
	Fix         FixConfig                 `yaml:"fix"`
	LLM         LLMConfig                 `yaml:"llm"`
	Review      ReviewConfig              `yaml:"review"`
	Identity    IdentityConfig            `yaml:"identity"`
	Effort      EffortConfig              `yaml:"effort"`
	Records     RecordsConfig             `yaml:"records"`
	Notify      NotifyConfig              `yaml:"notify"`
	Launch      LaunchConfig              `yaml:"launch"`
	Ledger      LedgerConfig              `yaml:"ledger"`
	Metrics     MetricsConfig             `yaml:"metrics"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
	Logging     LoggingConfig             `yaml:"logging"`
	Server      ServerConfig              `yaml:"server"`
	Checkpoints string                    `yaml:"checkpoints"`
}

// ProviderConfig describes how to reach one external tool provider.
type ProviderConfig struct {
	Type     string            `yaml:"type"` // "stdio" or "streamableHttp"
	Command  string            `yaml:"command,omitempty"`
	Args     []string          `yaml:"args,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Cwd      string            `yaml:"cwd,omitempty"`
	URL      string            `yaml:"url,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Timeout  time.Duration     `yaml:"timeout,omitempty"`
	Disabled bool              `yaml:"disabled,omitempty"`
}

// Timeouts bound every blocking call to an external system.
type Timeouts struct {
	Connect time.Duration `yaml:"connect"`
	Invoke  time.Duration `yaml:"invoke"`
}

// SelectorConfig controls which findings the tracker is asked for.
type SelectorConfig struct {
	Provider       string   `yaml:"provider"`
	Capability     string   `yaml:"capability,omitempty"`
	ProjectKey     string   `yaml:"project_key"`
	Branch         string   `yaml:"branch,omitempty"`
	Severities     []string `yaml:"severities,omitempty"`
	Types          []string `yaml:"types,omitempty"`
	Statuses       []string `yaml:"statuses,omitempty"`
	Sort           string   `yaml:"sort"`
	Ascending      bool     `yaml:"ascending"`
	PageSize       int      `yaml:"page_size"`
	MaxPages       int      `yaml:"max_pages"`
	PagesPerSecond float64  `yaml:"pages_per_second"`
}

// WorkspaceConfig describes the local checkout fixes are made in.
type WorkspaceConfig struct {
	RepoPath       string `yaml:"repo_path"`
	BaseBranch     string `yaml:"base_branch"`
	Remote         string `yaml:"remote"`
	Pull           bool   `yaml:"pull"`
	Push           bool   `yaml:"push"`
	BranchTemplate string `yaml:"branch_template"`
	CommitTemplate string `yaml:"commit_template"`
	AuthorName     string `yaml:"author_name"`
	AuthorEmail    string `yaml:"author_email"`
	Username       string `yaml:"username,omitempty"`
	Token          string `yaml:"token,omitempty"`
}

// FixConfig tunes fix generation.
type FixConfig struct {
	ContextRadius int `yaml:"context_radius"`
}

// LLMConfig selects the model backend.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "openai" or "anthropic"
	BaseURL     string        `yaml:"base_url,omitempty"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ReviewConfig controls review-request creation.
type ReviewConfig struct {
	Backend             string        `yaml:"backend"` // "mcp" or "github"
	Provider            string        `yaml:"provider"`
	Capability          string        `yaml:"capability,omitempty"`
	Project             string        `yaml:"project"`
	Repository          string        `yaml:"repository"`
	TargetBranch        string        `yaml:"target_branch"`
	WorkItemID          string        `yaml:"work_item_id,omitempty"`
	DefaultReviewer     string        `yaml:"default_reviewer"`
	Labels              []string      `yaml:"labels,omitempty"`
	TitleTemplate       string        `yaml:"title_template"`
	DescriptionTemplate string        `yaml:"description_template"`
	URLTemplate         string        `yaml:"url_template"`
	Timeout             time.Duration `yaml:"timeout"`
	GitHub              GitHubConfig  `yaml:"github"`
}

// GitHubConfig configures the GitHub review backend.
type GitHubConfig struct {
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Token   string `yaml:"token,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// IdentityConfig points at the identity mapping tables.
type IdentityConfig struct {
	PlatformMap  string `yaml:"platform_map"`
	MessagingMap string `yaml:"messaging_map"`
}

// EffortConfig configures the effort accumulator.
type EffortConfig struct {
	Path         string `yaml:"path"`
	FloorMinutes int    `yaml:"floor_minutes"`
}

// RecordsConfig configures the processed-issue store.
type RecordsConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig configures broadcast and direct notifications.
type NotifyConfig struct {
	WebhookURL      string        `yaml:"webhook_url,omitempty"`
	Timeout         time.Duration `yaml:"timeout"`
	UnassignedLabel string        `yaml:"unassigned_label"`
	MessageTemplate string        `yaml:"message_template"`
	Lark            LarkConfig    `yaml:"lark"`
}

// LarkConfig holds Feishu/Lark app credentials for direct messages.
type LarkConfig struct {
	AppID     string `yaml:"app_id,omitempty"`
	AppSecret string `yaml:"app_secret,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

// LaunchConfig controls opening the review link when a run finishes.
type LaunchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LedgerConfig selects the run-event database.
type LedgerConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// MetricsConfig configures Prometheus metric export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url,omitempty"`
	Job            string `yaml:"job"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}
