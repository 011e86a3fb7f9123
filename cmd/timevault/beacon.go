package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"timevault/internal/factory"
	"timevault/internal/timeauth"
)

func newRoundCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "round",
		Short: "Show the round a message sealed for a time would wait for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid time format, expected RFC3339")
				}
				t = parsed
			}

			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				params, err := e.Availability.Parameters(ctx)
				if err != nil {
					return err
				}
				round, err := timeauth.RoundAt(params, t)
				if err != nil {
					return err
				}
				availableAt, err := timeauth.TimeForRound(params, round)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "round: %d\navailable_at: %s\n",
					round, availableAt.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 timestamp (default now)")
	return cmd
}

func newBeaconCmd() *cobra.Command {
	beaconCmd := &cobra.Command{
		Use:   "beacon",
		Short: "Beacon operations",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Compare the beacon's latest round with the expected one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				st := timeauth.CheckStatus(ctx, e.Availability, time.Now())
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "chain_hash: %s\nlatest_round: %d\nexpected_round: %d\nstatus: %s\n",
					st.ChainHash, st.LatestRound, st.ExpectedRound, st.Sync)
				return st.Err
			})
		},
	}
	beaconCmd.AddCommand(statusCmd)

	return beaconCmd
}
