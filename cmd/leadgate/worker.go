package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cfotel "github.com/Strob0t/leadgate/internal/adapter/otel"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume dedup repair messages until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := cfotel.Init(ctx, cfg.OTEL, cfg.Logging.Service+"-worker")
	if err != nil {
		return err
	}
	defer flushOTEL(otelShutdown)

	a, err := newApp(ctx, cfg, appOptions{queue: true})
	if err != nil {
		return err
	}
	defer a.Close()

	stopWorker, err := a.worker.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("stopping repair worker")
	stopWorker()
	if err := a.queue.Drain(); err != nil {
		slog.Warn("queue drain failed", "error", err)
	}
	return nil
}
