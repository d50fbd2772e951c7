package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfhttp "github.com/Strob0t/leadgate/internal/adapter/http"
	cfotel "github.com/Strob0t/leadgate/internal/adapter/otel"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also consume dedup repair messages in this process")
	return cmd
}

func runServe(parent context.Context, withWorker bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := cfotel.Init(ctx, cfg.OTEL, cfg.Logging.Service)
	if err != nil {
		return err
	}
	defer flushOTEL(otelShutdown)

	a, err := newApp(ctx, cfg, appOptions{queue: true, cache: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if withWorker {
		stopWorker, err := a.worker.Start(ctx)
		if err != nil {
			return err
		}
		defer stopWorker()
	}

	handlers := &cfhttp.Handlers{
		Leads:   a.leads,
		Gateway: a.gateway,
		Binder:  a.binder,
		Dedup:   a.dedup,
		Health: map[string]cfhttp.HealthCheck{
			"store": a.storePing,
			"queue": a.queuePing,
		},
	}
	routerCfg := cfhttp.RouterConfig{
		Policy:         a.policy,
		Directory:      a.directory,
		CORSOrigins:    splitList(cfg.Server.CORSOrigin),
		Idempotency:    a.cache,
		IdempotencyTTL: 24 * time.Hour,
		Metrics:        cfhttp.NewPromMetrics(),
	}
	if cfg.OTEL.Enabled {
		routerCfg.TraceService = cfg.Logging.Service
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           cfhttp.NewRouter(handlers, routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "with_worker", withWorker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if a.queue != nil {
		if err := a.queue.Drain(); err != nil {
			slog.Warn("queue drain failed", "error", err)
		}
	}
	return nil
}

func flushOTEL(shutdown cfotel.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Warn("otel shutdown failed", "error", err)
	}
}
