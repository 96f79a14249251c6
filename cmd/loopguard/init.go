package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newInitCmd writes ~/.loopguard/settings.json from defaults and flags.
func newInitCmd() *cobra.Command {
	cfg := defaultConfig()
	var timeout, idleTTL, retention time.Duration

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings.json with defaults and the given overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("db-path") {
				cfg.DBPath, _ = cmd.Flags().GetString("db-path")
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
			}
			cfg.Timeout = Duration(timeout)
			cfg.IdleTTL = Duration(idleTTL)
			cfg.Retention = Duration(retention)

			path, err := writeSettings(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.HistoryCap, "history-cap", cfg.HistoryCap, "outputs retained per loop")
	f.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations, "iteration cap for loops without one")
	f.DurationVar(&timeout, "timeout", time.Duration(cfg.Timeout), "timeout for loops without one")
	f.DurationVar(&idleTTL, "idle-ttl", time.Duration(cfg.IdleTTL), "evict loops idle this long (0 disables)")
	f.StringVar(&cfg.JanitorSchedule, "janitor-schedule", cfg.JanitorSchedule, "cron schedule for the janitor")
	f.DurationVar(&retention, "retention", time.Duration(cfg.Retention), "purge finished runs older than this (0 disables)")
	return cmd
}
