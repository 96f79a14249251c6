package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPurgeCmd(flags *cliFlags) *cobra.Command {
	var (
		olderThan time.Duration
		vacuum    bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete finished loop runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := resolveConfig(cmd, *flags)
			if !cmd.Flags().Changed("older-than") {
				olderThan = time.Duration(cfg.Retention)
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.PurgeLoopRuns(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			if vacuum {
				if err := st.Vacuum(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d loop runs\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age cutoff (default: configured retention)")
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "run VACUUM afterwards")
	return cmd
}
