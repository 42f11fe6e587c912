package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/callbacks"
	"github.com/effective-security/toolagent/internal/httpapi"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Serves POST / with the user message as the body and returns {"result": ...}.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.HTTP.Listen = listen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, callbacks.NewPackageLogger(logger))
		if err != nil {
			return err
		}
		defer a.Close()

		if a.refresher != nil {
			go a.refresher.Run(ctx, cfg.MCP.RefreshInterval.D())
		}
		if a.store.Policy() == store.PolicyRetained {
			go runJanitor(ctx, a.store, cfg.Agent.IdleTTL.D())
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           httpapi.New(a.agent).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.HTTP.ReadTimeout.D(),
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.KV(xlog.NOTICE, "status", "listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "server failed")
			}
			return nil
		case <-ctx.Done():
		}

		timeout := cfg.HTTP.ShutdownTimeout.D()
		logger.KV(xlog.NOTICE, "status", "shutting_down", "timeout", timeout.String())
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.KV(xlog.ERROR, "reason", "shutdown", "err", err.Error())
			return srv.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "listen address, overrides the config file")
}

// runJanitor evicts idle threads until ctx is done.
func runJanitor(ctx context.Context, threads store.ThreadStore, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(max(idle/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := threads.Cleanup(ctx, idle)
			if err != nil {
				logger.KV(xlog.ERROR, "reason", "cleanup", "err", err.Error())
			} else if n > 0 {
				logger.KV(xlog.INFO, "status", "evicted_threads", "count", n)
			}
		}
	}
}
