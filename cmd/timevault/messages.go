package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"timevault/internal/factory"
	"timevault/internal/seal"
)

func newSealCmd() *cobra.Command {
	var until, title, kind, mediaHash, createdBy string

	cmd := &cobra.Command{
		Use:   "seal VAULT_ID [path] --until <time> --title <title>",
		Short: "Seal a message until a future time (reads stdin without a path)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if until == "" {
				return fmt.Errorf("--until is required")
			}
			unlockTime, err := seal.ParseUnlockTime(until, time.Now())
			if err != nil {
				return err
			}

			req := seal.CreateMessageRequest{
				Title:      title,
				Kind:       seal.ContentKind(strings.ToUpper(kind)),
				MediaHash:  mediaHash,
				UnlockTime: unlockTime,
				CreatedBy:  createdBy,
			}
			if req.Kind == seal.KindText {
				var path string
				if len(args) == 2 {
					path = args[1]
				}
				if req.Content, err = seal.ReadInput(path, cmd.InOrStdin()); err != nil {
					return err
				}
			}

			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				m, err := e.Lifecycle.CreateMessage(ctx, args[0], req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), m.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "RFC3339 timestamp for unlock time")
	cmd.Flags().StringVar(&title, "title", "", "Message title, 1-100 characters")
	cmd.Flags().StringVar(&kind, "kind", string(seal.KindText), "Content kind: text, image or video")
	cmd.Flags().StringVar(&mediaHash, "media-hash", "", "Content hash of the uploaded media (image and video)")
	cmd.Flags().StringVar(&createdBy, "created-by", "", "Author ID")
	return cmd
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open VAULT_ID MESSAGE_ID",
		Short: "Read a message, unlocking it if its round has been published",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				m, err := e.Lifecycle.OnAccess(ctx, args[0], args[1])
				if m != nil {
					_, _ = fmt.Fprint(cmd.OutOrStdout(), seal.FormatStatusOutput([]*seal.Message{m}))
				}
				return err
			})
		},
	}
}

func newListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list VAULT_ID",
		Short: "List a vault's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := seal.ParseStatusFilter(status)
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				result, err := e.Lifecycle.List(ctx, args[0], filter)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), seal.FormatStatusOutput(result.Messages))

				if result.EvaluationFailed {
					return fmt.Errorf("evaluation failed: %w", result.FirstError)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(seal.FilterAll), "Filter: all, locked or unlocked")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete VAULT_ID MESSAGE_ID",
		Short: "Delete a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				return e.Lifecycle.OnDelete(ctx, args[0], args[1])
			})
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep VAULT_ID",
		Short: "Unlock every message whose round has been published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *factory.Engine) error {
				n, err := e.Lifecycle.Sweep(ctx, args[0])
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "unlocked: %d\n", n)
				return err
			})
		},
	}
}
