// Command leadgate serves the lead access gate, runs the dedup repair
// worker and exposes operator tooling.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/leadgate/internal/config"
	"github.com/Strob0t/leadgate/internal/logger"
)

// globals bound to persistent flags and filled in by loadConfig.
var (
	flags     config.CLIFlags
	cfg       *config.Config
	logCloser logger.Closer
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leadgate",
		Short:         "Lead access gate: visibility, field guard, dedup and assignment sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	flags.ConfigPath = pf.String("config", "", "path to YAML config (default "+config.DefaultConfigFile+")")
	flags.Port = pf.String("port", "", "HTTP listen port")
	flags.LogLevel = pf.String("log-level", "", "log level (debug|info|warn|error)")
	flags.DSN = pf.String("dsn", "", "PostgreSQL DSN")
	flags.NatsURL = pf.String("nats-url", "", "NATS server URL")
	flags.StoreDrv = pf.String("store", "", "record store driver (postgres|memory)")

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newAdminCmd(),
	)
	return root
}

// loadConfig resolves configuration and installs the process logger.
// Only flags the user actually set override lower layers.
func loadConfig(cmd *cobra.Command) error {
	pf := cmd.Flags()
	f := config.CLIFlags{}
	pick := func(name string, v *string) *string {
		if pf.Changed(name) {
			return v
		}
		return nil
	}
	f.ConfigPath = pick("config", flags.ConfigPath)
	f.Port = pick("port", flags.Port)
	f.LogLevel = pick("log-level", flags.LogLevel)
	f.DSN = pick("dsn", flags.DSN)
	f.NatsURL = pick("nats-url", flags.NatsURL)
	f.StoreDrv = pick("store", flags.StoreDrv)

	loaded, path, err := config.LoadWithCLI(f)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg = loaded

	var log *slog.Logger
	log, logCloser = logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Debug("config loaded",
		"path", path,
		"store", cfg.Store.Driver,
		"queue", cfg.Queue.Driver,
		"cache_l2", cfg.Cache.L2,
	)
	return nil
}
