package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/srehub/internal/syncer"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(
				context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := syncer.New(a.store, a.cfg.Sync, a.log)
			scheduler := syncer.NewScheduler(engine, a.log)

			a.log.Info("scheduler started")
			scheduler.Run(ctx)
			a.log.Info("scheduler stopped")
			return nil
		},
	}
}
