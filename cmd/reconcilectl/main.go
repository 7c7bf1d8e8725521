package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vouh/Course-corner-sub000/internal/app"
	"github.com/vouh/Course-corner-sub000/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "reconcilectl",
		Short:        "Operate the STK payment reconciliation engine",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func sweepCmd() *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile sessions whose callback never arrived",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if enqueue {
				if a.Enqueuer == nil {
					return errors.New("--enqueue needs REDIS_ADDR")
				}
				id, err := a.Enqueuer.EnqueueSweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued sweep task %s\n", id)
				return nil
			}

			report, err := a.Sweeper.Run(cmd.Context())
			if report != nil {
				_ = printJSON(cmd, report)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "hand the sweep to the background worker instead of running it here")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show a payment session, confirming with the provider if it is overdue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.Status.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}

func load(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return app.New(ctx, cfg, logger)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
