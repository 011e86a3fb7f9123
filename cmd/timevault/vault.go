package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"timevault/internal/factory"
	"timevault/internal/seal"
)

func newVaultCmd() *cobra.Command {
	vaultCmd := &cobra.Command{
		Use:   "vault",
		Short: "Vault operations",
	}

	var name, owner string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				v, err := e.Lifecycle.CreateVault(ctx, name, owner)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), v.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVarP(&name, "name", "n", "", "Vault name (required)")
	createCmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner ID")
	vaultCmd.AddCommand(createCmd)

	showCmd := &cobra.Command{
		Use:   "show VAULT_ID",
		Short: "Show a vault and its message counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				v, err := e.Lifecycle.Vault(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), seal.FormatVault(v))
				return nil
			})
		},
	}
	vaultCmd.AddCommand(showCmd)

	return vaultCmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check VAULT_ID",
		Short: "Verify a vault's counters and message states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				if err := seal.CheckVault(ctx, e.Store, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
}
