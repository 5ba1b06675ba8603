package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cc-text-pipeline/internal/metrics"
)

func newWorkCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Consume batches and write filtered text to object storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if concurrency <= 0 {
				concurrency = cfg.Worker.Concurrency
			}

			d, err := appInstance.NewDispatcher(cmd.Context(), concurrency)
			if err != nil {
				return fmt.Errorf("init workers: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			if cfg.Metrics.Addr != "" {
				g.Go(func() error {
					return metrics.Serve(gctx, cfg.Metrics.Addr, appInstance.Metrics(), appInstance.Logger())
				})
			}
			g.Go(func() error {
				defer cancel()
				return d.Run(gctx)
			})

			appInstance.Logger().Info("workers started", zap.Int("concurrency", concurrency))
			if err := g.Wait(); err != nil {
				return err
			}
			appInstance.Logger().Info("work command finished")
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of workers (defaults to worker.concurrency)")
	return cmd
}
