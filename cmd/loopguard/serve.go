package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/albert-ai/loopguard/internal/expressions"
	"github.com/albert-ai/loopguard/internal/logging"
	"github.com/albert-ai/loopguard/internal/loop"
	"github.com/albert-ai/loopguard/internal/metrics"
	"github.com/albert-ai/loopguard/internal/scheduler"
	"github.com/albert-ai/loopguard/internal/store"
	"github.com/albert-ai/loopguard/internal/streaming"
	"github.com/albert-ai/loopguard/internal/validation"
	loopmcp "github.com/albert-ai/loopguard/pkg/mcp"
)

func newServeCmd(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the loopguard MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), resolveConfig(cmd, *flags))
		},
	}
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
	return cmd
}

// startMetrics serves the collector on addr until the returned stop is called.
func startMetrics(addr string, c *metrics.Collector, logger *slog.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// openStore opens the libSQL database at cfg.DBPath and applies migrations.
func openStore(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// runServe wires the store, evaluator, registry and janitor behind the MCP
// server and blocks until ctx is cancelled or stdin closes.
func runServe(ctx context.Context, cfg Config) error {
	// stdout carries the MCP protocol, so logs go to stderr.
	logger := logging.New(os.Stderr, cfg.LogLevel)

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("open store failed", "db_path", cfg.DBPath, "error", err)
		return err
	}
	defer st.Close()

	schemaVersion, err := st.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	conditions, err := expressions.NewConditionEvaluator()
	if err != nil {
		return fmt.Errorf("expression engines: %w", err)
	}
	validator, err := validation.NewDocumentValidator(conditions)
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}

	hub := streaming.NewMemoryHub()
	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		stop := startMetrics(cfg.MetricsAddr, collector, logger)
		defer stop()
	}

	runner := loop.NewRunner(loop.RunnerDeps{
		Evaluator: loop.NewEvaluator(loop.WithLogger(logger), loop.WithConditions(conditions)),
		Store:     st,
		Hub:       hub,
		Observer:  collector,
		Logger:    logger,
	})
	registry := loop.NewRegistry(runner)

	janitor, err := scheduler.NewJanitor(registry, st, cfg.janitorConfig(), logger)
	if err != nil {
		return err
	}
	if err := janitor.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = janitor.Stop() }()

	srv := loopmcp.NewLoopguardServer(loopmcp.LoopguardServerDeps{
		Registry:  registry,
		Validator: validator,
		Store:     st,
		Hub:       hub,
		Defaults: loopmcp.LoopDefaults{
			HistoryCap:    cfg.HistoryCap,
			MaxIterations: cfg.MaxIterations,
			Timeout:       time.Duration(cfg.Timeout),
		},
		Logger:  logger,
		Version: version,
	})

	logger.Info("loopguard serving on stdio",
		"version", version,
		"db_path", cfg.DBPath,
		"schema_version", schemaVersion,
		"janitor_schedule", cfg.JanitorSchedule,
		"next_sweep", janitor.NextSweep(time.Now()),
	)
	return srv.Serve(ctx)
}
