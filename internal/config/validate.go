package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	providerTypes = map[string]bool{"stdio": true, "streamableHttp": true}
	llmProviders  = map[string]bool{"openai": true, "anthropic": true}
	reviewBackend = map[string]bool{"mcp": true, "github": true}
	ledgerDrivers = map[string]bool{"sqlite": true, "postgres": true}
	logFormats    = map[string]bool{"console": true, "json": true}
)

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := cfg.Providers[name]
		prefix := "providers." + name
		if p.Disabled {
			continue
		}
		if !providerTypes[p.Type] {
			add(prefix+".type", "unrecognized provider type %q", p.Type)
			continue
		}
		if p.Type == "stdio" && p.Command == "" {
			add(prefix+".command", "is required for stdio providers")
		}
		if p.Type == "streamableHttp" {
			if p.URL == "" {
				add(prefix+".url", "is required for streamableHttp providers")
			} else if u, err := url.Parse(p.URL); err != nil || u.Scheme == "" {
				add(prefix+".url", "invalid URL %q", p.URL)
			}
		}
	}

	if !enabledProvider(cfg, cfg.Selector.Provider) {
		add("selector.provider", "references undefined or disabled provider %q", cfg.Selector.Provider)
	}
	if cfg.Selector.ProjectKey == "" {
		add("selector.project_key", "is required")
	}
	if cfg.Selector.PagesPerSecond < 0 {
		add("selector.pages_per_second", "must not be negative")
	}

	if !llmProviders[cfg.LLM.Provider] {
		add("llm.provider", "unrecognized LLM provider %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Provider == "anthropic" && cfg.LLM.APIKey == "" {
		add("llm.api_key", "is required for the anthropic provider")
	}

	r := cfg.Review
	switch {
	case !reviewBackend[r.Backend]:
		add("review.backend", "unrecognized review backend %q", r.Backend)
	case r.Backend == "mcp":
		if !enabledProvider(cfg, r.Provider) {
			add("review.provider", "references undefined or disabled provider %q", r.Provider)
		}
		if r.Project == "" {
			add("review.project", "is required")
		}
		if r.Repository == "" {
			add("review.repository", "is required")
		}
	case r.Backend == "github":
		if r.GitHub.Owner == "" || r.GitHub.Repo == "" {
			add("review.github", "owner and repo are required")
		}
		if r.GitHub.Token == "" {
			add("review.github.token", "is required")
		}
	}
	if r.DefaultReviewer == "" {
		add("review.default_reviewer", "is required")
	}
	if r.URLTemplate != "" && !strings.Contains(r.URLTemplate, "{{id}}") {
		add("review.url_template", "must contain {{id}}")
	}

	if (cfg.Notify.Lark.AppID == "") != (cfg.Notify.Lark.AppSecret == "") {
		add("notify.lark", "app_id and app_secret must be set together")
	}

	if !ledgerDrivers[cfg.Ledger.Driver] {
		add("ledger.driver", "unrecognized ledger driver %q", cfg.Ledger.Driver)
	}
	if cfg.Ledger.DSN == "" {
		add("ledger.dsn", "is required")
	}
	if !logFormats[cfg.Logging.Format] {
		add("logging.format", "unrecognized log format %q", cfg.Logging.Format)
	}

	return errs
}

func enabledProvider(cfg *Config, name string) bool {
	p, ok := cfg.Providers[name]
	return ok && !p.Disabled
}
