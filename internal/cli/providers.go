package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect the configured tool providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		names := make([]string, 0, len(cfg.Providers))
		for name := range cfg.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No providers configured.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTYPE\tTARGET\tSTATE")
		for _, name := range names {
			p := cfg.Providers[name]
			target := p.URL
			if p.Type == "stdio" {
				target = p.Command
			}
			state := "enabled"
			if p.Disabled {
				state = "disabled"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, p.Type, target, state)
		}
		return tw.Flush()
	},
}

var providersToolsCmd = &cobra.Command{
	Use:   "tools <provider>",
	Short: "Connect to a provider and list its capabilities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sessions := a.sessions()
		defer sessions.Close()

		tools, err := sessions.Capabilities(ctx, args[0])
		if err != nil {
			return err
		}
		for _, t := range tools {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersToolsCmd)
}
