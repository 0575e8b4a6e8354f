package cli

import (
	"fmt"

	"github.com/lucasnoah/sonarfix/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			cmd.Println("Configuration is valid.")
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	Long: `Show the resolved configuration. Secrets (API keys, tokens, app secrets)
are masked unless --reveal is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if reveal, _ := cmd.Flags().GetBool("reveal"); !reveal {
			maskSecrets(cfg)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		cmd.Print(string(data))
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

func maskSecrets(cfg *config.Config) {
	for _, s := range []*string{
		&cfg.LLM.APIKey,
		&cfg.Workspace.Token,
		&cfg.Review.GitHub.Token,
		&cfg.Notify.Lark.AppSecret,
	} {
		if *s != "" {
			*s = "****"
		}
	}
	for name, p := range cfg.Providers {
		if len(p.Env) == 0 && len(p.Headers) == 0 {
			continue
		}
		env := make(map[string]string, len(p.Env))
		for k := range p.Env {
			env[k] = "****"
		}
		headers := make(map[string]string, len(p.Headers))
		for k := range p.Headers {
			headers[k] = "****"
		}
		p.Env, p.Headers = env, headers
		cfg.Providers[name] = p
	}
}

func init() {
	configShowCmd.Flags().Bool("reveal", false, "Print secrets in clear text")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
