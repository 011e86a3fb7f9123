package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"timevault/internal/config"
	"timevault/internal/factory"
	"timevault/internal/logger"
)

const longUsage = `timevault - messages sealed until a drand beacon round is published

A message is bound to the first beacon round after its unlock time. It stays
locked until that round exists, and unlocks the first time it is read after.

No undo. No early unlock.`

var (
	debug       bool
	dumpMetrics bool
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "timevault",
		Short:         "Time-locked message vaults backed by the drand beacon",
		Long:          longUsage,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable verbose debug output")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "Write Prometheus metrics to stderr after the command")

	rootCmd.AddCommand(newVaultCmd())
	rootCmd.AddCommand(newSealCmd())
	rootCmd.AddCommand(newOpenCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newRoundCmd())
	rootCmd.AddCommand(newBeaconCmd())
	return rootCmd
}

// withEngine loads configuration from the environment, builds the engine and
// runs fn with it. Logs, and metrics when --metrics is set, go to the command's stderr.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *factory.Engine) error) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	level := cfg.Level()
	if debug {
		level = zerolog.DebugLevel
	}
	log := logger.NewConsole(cmd.ErrOrStderr(), level)
	cfg.LogSummary(log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	engine, err := factory.NewEngine(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}()

	err = fn(ctx, engine)
	if dumpMetrics {
		if werr := writeMetrics(cmd.ErrOrStderr(), prometheus.DefaultGatherer); werr != nil {
			log.Warn().Err(werr).Msg("failed to write metrics")
		}
	}
	return err
}
