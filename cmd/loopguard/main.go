package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cliFlags are the persistent flags that override every config layer.
type cliFlags struct {
	dbPath      string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	root := &cobra.Command{
		Use:   "loopguard",
		Short: "Loop detection and convergence control for agent workflows",
		Long: `loopguard finds loops in agent workflow graphs and decides when a running
loop should stop: after a timeout, an iteration cap, converging or oscillating
output, a target value, or a custom expression.

Without a subcommand it serves the MCP tools over stdio.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), resolveConfig(cmd, flags))
		},
	}

	root.PersistentFlags().StringVar(&flags.dbPath, "db-path", "", "database path (default: ~/.loopguard/loopguard.db)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")

	root.AddCommand(
		newServeCmd(&flags),
		newDetectCmd(),
		newValidateCmd(),
		newDiagramCmd(),
		newPurgeCmd(&flags),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

// resolveConfig loads the layered config and applies flags set on cmd.
func resolveConfig(cmd *cobra.Command, flags cliFlags) Config {
	cfg := loadConfig()
	if cmd.Flags().Changed("db-path") {
		cfg.DBPath = flags.dbPath
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if f := cmd.Flags().Lookup("metrics-addr"); f != nil && f.Changed {
		cfg.MetricsAddr = flags.metricsAddr
	}
	return cfg
}
