package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/pihole-sync/internal/application"
	"github.com/spf13/cobra"
)

func newSyncCmd(app *app) *cobra.Command {
	var once bool
	var noInitialSync bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync secondaries from the main instance",
		Long:  "Runs one sync cycle with --once, otherwise keeps syncing according to sync.trigger_mode until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, err := app.newRunner(ctx)
			if err != nil {
				return err
			}

			err = runner.Run(ctx, application.RunOptions{Once: once, SkipInitialSync: noInitialSync})
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				app.logger.Info("shutting down")
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single sync cycle and exit")
	cmd.Flags().BoolVar(&noInitialSync, "no-initial-sync", false, "Wait for the first trigger instead of syncing at startup")

	return cmd
}
