package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/sonarfix/internal/metrics"
	"github.com/lucasnoah/sonarfix/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only status API",
	Long: `Start a JSON status API showing checkpointed runs, the event ledger, processed
findings, accumulated effort and Prometheus metrics.

The server only reads state; it never starts runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = a.cfg.Server.Addr
		}

		opts := web.Options{
			Addr:    addr,
			Store:   a.store,
			Records: a.records,
			Effort:  a.effort,
			Metrics: metrics.New().WithProcessCollectors().Handler(),
			Logger:  a.logger.Named("web"),
		}
		if ledger, err := a.openLedger(); err != nil {
			a.logger.Warn("event ledger unavailable, serving without it", zap.Error(err))
		} else {
			opts.Ledger = ledger
		}

		srv, err := web.NewServer(opts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()
		fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", addr)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config server.addr)")
}
