package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bilibatch/internal/aria2"
	"github.com/tinoosan/bilibatch/internal/metrics"
	"github.com/tinoosan/bilibatch/internal/router"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if cfg.Server.APIToken == "" {
				ctx.logger.Warn("BILIBATCH_API_TOKEN is empty; /v1 requests will be rejected")
			}
			metrics.Register()

			cl, err := ctx.aria2Client()
			if err != nil {
				return err
			}
			sink := aria2.NewDispatcher(cl, ctx.logger)
			h := router.New(ctx.logger, ctx.batchService(sink), cl, cfg.Server.APIToken)

			server := &http.Server{
				Addr:         addr,
				Handler:      h,
				IdleTimeout:  120 * time.Second,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 5 * time.Minute,
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				ctx.logger.Info("starting bilibatch api", "addr", server.Addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-sigCtx.Done():
			}

			ctx.logger.Info("received terminate, graceful shutdown")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
