package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/expresswash/jobsync/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only job view and run scheduled syncs",
	Long: `serve starts an HTTP server exposing committed jobs and live
lifecycle events. When sync.users or sync.washers are configured the
scheduler runs alongside it.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default server.addr)")
	if err := settings().BindPFlag("server.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sys, cfg, logger, err := openSystem(ctx)
	if err != nil {
		return err
	}
	defer sys.Close()

	handler := ui.Handler(sys.Store,
		ui.WithEventBus(sys.Bus),
		ui.WithLogger(logger),
		ui.WithMiddleware(middleware.RequestID),
	)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(cfg.Sync.Users) > 0 || len(cfg.Sync.Washers) > 0 {
		sched, err := startScheduler(sys, cfg.Sync, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := stopScheduler(sched); err != nil {
				logger.Warn("scheduler stop timed out", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCtx, stop := signalContext(ctx)
	defer stop()
	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
